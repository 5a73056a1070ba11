package ga

type Item struct {
	OrderID   string // utmtid, set by the owning transaction
	SKU       string // utmipc
	Name      string // utmipn
	Variation string // utmiva
	Price     *float64
	Quantity  int
}

func NewItem(sku string) *Item {
	return &Item{SKU: sku, Quantity: 1}
}

func (i *Item) Validate() error {
	if i.SKU == "" {
		return invalid("item", "items need to have a sku/product code defined")
	}
	return nil
}
