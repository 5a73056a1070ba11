package ga

type Transaction struct {
	orderID string

	Affiliation string
	Total       *float64
	Tax         *float64
	Shipping    *float64
	City        string
	Region      string
	Country     string

	items []*Item
	bySKU map[string]int
}

func NewTransaction(orderID string) *Transaction {
	return &Transaction{orderID: orderID, bySKU: map[string]int{}}
}

func (t *Transaction) OrderID() string { return t.orderID }

// SetOrderID updates the transaction and every associated item.
func (t *Transaction) SetOrderID(orderID string) {
	t.orderID = orderID
	for _, it := range t.items {
		it.OrderID = orderID
	}
}

// AddItem associates item with the transaction; it inherits the order id.
// An item with an already known SKU replaces the previous one in place.
func (t *Transaction) AddItem(item *Item) {
	if t.bySKU == nil {
		t.bySKU = map[string]int{}
	}
	item.OrderID = t.orderID
	if i, ok := t.bySKU[item.SKU]; ok {
		t.items[i] = item
		return
	}
	t.bySKU[item.SKU] = len(t.items)
	t.items = append(t.items, item)
}

// Items returns the items in the order they were added.
func (t *Transaction) Items() []*Item {
	return append([]*Item(nil), t.items...)
}

func (t *Transaction) Validate() error {
	if len(t.items) == 0 {
		return invalid("transaction", "transactions need to consist of at least one item")
	}
	return nil
}
