package api

import (
	"beacon-relay/internal/ga"
	"beacon-relay/internal/storage"
	"beacon-relay/internal/tracker"
)

// clientFields are accepted by every tracking endpoint.
type clientFields struct {
	ClientID         string                  `json:"client_id"`
	Locale           string                  `json:"locale,omitempty"`
	ScreenResolution string                  `json:"screen_resolution,omitempty"`
	ScreenColorDepth int                     `json:"screen_color_depth,omitempty"`
	FlashVersion     string                  `json:"flash_version,omitempty"`
	JavaEnabled      bool                    `json:"java_enabled,omitempty"`
	Campaign         *campaignRequest        `json:"campaign,omitempty"`
	CustomVariables  []customVariableRequest `json:"custom_variables,omitempty"`
}

type campaignRequest struct {
	Type     string `json:"type,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	ID       string `json:"id,omitempty"`
	Source   string `json:"source,omitempty"`
	GClickID string `json:"gclid,omitempty"`
	DClickID string `json:"dclid,omitempty"`
	Name     string `json:"name,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

type customVariableRequest struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Scope int    `json:"scope,omitempty"`
}

type pageRequest struct {
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	Charset    string `json:"charset,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	LoadTimeMS *int   `json:"load_time_ms,omitempty"`
}

type pageviewRequest struct {
	clientFields
	Page pageRequest `json:"page"`
}

type eventRequest struct {
	clientFields
	Category       string `json:"category"`
	Action         string `json:"action"`
	Label          string `json:"label,omitempty"`
	Value          *int   `json:"value,omitempty"`
	NonInteraction bool   `json:"non_interaction,omitempty"`
}

type itemRequest struct {
	SKU       string   `json:"sku"`
	Name      string   `json:"name,omitempty"`
	Variation string   `json:"variation,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	Quantity  int      `json:"quantity,omitempty"`
}

type transactionRequest struct {
	clientFields
	OrderID     string        `json:"order_id"`
	Affiliation string        `json:"affiliation,omitempty"`
	Total       *float64      `json:"total,omitempty"`
	Tax         *float64      `json:"tax,omitempty"`
	Shipping    *float64      `json:"shipping,omitempty"`
	City        string        `json:"city,omitempty"`
	Region      string        `json:"region,omitempty"`
	Country     string        `json:"country,omitempty"`
	Items       []itemRequest `json:"items"`
}

type socialRequest struct {
	clientFields
	Network string      `json:"network"`
	Action  string      `json:"action"`
	Target  string      `json:"target,omitempty"`
	Page    pageRequest `json:"page"`
}

// applyTo copies the browser attributes the request carries; absent ones
// keep their previous values.
func (c clientFields) applyTo(v *ga.Visitor) {
	if c.Locale != "" {
		v.Locale = c.Locale
	}
	if c.ScreenResolution != "" {
		v.ScreenResolution = c.ScreenResolution
	}
	if c.ScreenColorDepth > 0 {
		v.ScreenColorDepth = c.ScreenColorDepth
	}
	if c.FlashVersion != "" {
		v.FlashVersion = c.FlashVersion
	}
	if c.JavaEnabled {
		v.JavaEnabled = true
	}
}

// configure hands the client's campaign and the request's custom variables
// to tr. A campaign in the request replaces the stored attribution.
func (c clientFields) configure(tr *tracker.Tracker, e *storage.Entry) error {
	if c.Campaign != nil {
		campaign, err := c.Campaign.toCampaign()
		if err != nil {
			return err
		}
		e.Campaign = campaign
	}
	if e.Campaign != nil {
		if err := tr.SetCampaign(e.Campaign); err != nil {
			return err
		}
	}
	for _, v := range c.CustomVariables {
		cv, err := ga.NewCustomVariable(v.Index, v.Name, v.Value, ga.Scope(v.Scope))
		if err != nil {
			return err
		}
		if err := tr.AddCustomVariable(cv); err != nil {
			return err
		}
	}
	return nil
}

func (c *campaignRequest) toCampaign() (*ga.Campaign, error) {
	var (
		campaign *ga.Campaign
		err      error
	)
	switch {
	case c.Referrer != "":
		campaign, err = ga.CampaignFromReferrer(c.Referrer)
	case c.Type != "":
		campaign, err = ga.NewCampaign(ga.CampaignType(c.Type))
	default:
		campaign, err = ga.NewCampaign(ga.CampaignReferral)
	}
	if err != nil {
		return nil, err
	}

	override(&campaign.ID, c.ID)
	override(&campaign.Source, c.Source)
	override(&campaign.GClickID, c.GClickID)
	override(&campaign.DClickID, c.DClickID)
	override(&campaign.Name, c.Name)
	override(&campaign.Medium, c.Medium)
	override(&campaign.Term, c.Term)
	override(&campaign.Content, c.Content)
	return campaign, campaign.Validate()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (p pageRequest) toPage() (*ga.Page, error) {
	page, err := ga.NewPage(p.Path)
	if err != nil {
		return nil, err
	}
	page.Title = p.Title
	page.Charset = p.Charset
	page.Referrer = p.Referrer
	if p.LoadTimeMS != nil {
		if err := page.SetLoadTime(*p.LoadTimeMS); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func (e eventRequest) toEvent() *ga.Event {
	event := ga.NewEvent(e.Category, e.Action)
	event.Label = e.Label
	event.Value = e.Value
	event.NonInteraction = e.NonInteraction
	return event
}

func (t transactionRequest) toTransaction() *ga.Transaction {
	tx := ga.NewTransaction(t.OrderID)
	tx.Affiliation = t.Affiliation
	tx.Total, tx.Tax, tx.Shipping = t.Total, t.Tax, t.Shipping
	tx.City, tx.Region, tx.Country = t.City, t.Region, t.Country
	for _, it := range t.Items {
		item := ga.NewItem(it.SKU)
		item.Name = it.Name
		item.Variation = it.Variation
		item.Price = it.Price
		if it.Quantity > 0 {
			item.Quantity = it.Quantity
		}
		tx.AddItem(item)
	}
	return tx
}
