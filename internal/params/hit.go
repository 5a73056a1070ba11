package params

import "beacon-relay/internal/ga"

// Kind is the request type carried in utmt.
type Kind int

const (
	KindPageview Kind = iota
	KindEvent
	KindTransaction
	KindItem
	KindSocial
	// KindCustomVariable is the deprecated _setVar request; custom variables
	// normally travel inside utme.
	KindCustomVariable
)

var kindNames = [...]string{"pageview", "event", "transaction", "item", "social", "var"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Token is the utmt value; pageviews send none.
func (k Kind) Token() string {
	switch k {
	case KindEvent:
		return "event"
	case KindTransaction:
		return "tran"
	case KindItem:
		return "item"
	case KindSocial:
		return "social"
	case KindCustomVariable:
		return "var"
	default:
		return ""
	}
}

// ecommerce kinds carry neither visitor nor custom variable data, just like
// the browser client.
func (k Kind) ecommerce() bool {
	return k == KindTransaction || k == KindItem
}

// Hit is one of the request variants below.
type Hit interface {
	Kind() Kind
	validate() error
}

type Pageview struct {
	Page *ga.Page
}

type EventHit struct {
	Event *ga.Event
}

type TransactionHit struct {
	Transaction *ga.Transaction
}

type ItemHit struct {
	Item *ga.Item
}

// SocialHit carries the page fields as well; the page path is the default
// social target.
type SocialHit struct {
	Social *ga.SocialInteraction
	Page   *ga.Page
}

// CustomVariableHit announces the legacy __utmv value.
type CustomVariableHit struct{}

func (Pageview) Kind() Kind          { return KindPageview }
func (EventHit) Kind() Kind          { return KindEvent }
func (TransactionHit) Kind() Kind    { return KindTransaction }
func (ItemHit) Kind() Kind           { return KindItem }
func (SocialHit) Kind() Kind         { return KindSocial }
func (CustomVariableHit) Kind() Kind { return KindCustomVariable }

func (h Pageview) validate() error {
	if h.Page == nil {
		return &ga.ValidationError{Entity: "page", Reason: "missing page"}
	}
	return h.Page.Validate()
}

func (h EventHit) validate() error {
	if h.Event == nil {
		return &ga.ValidationError{Entity: "event", Reason: "missing event"}
	}
	return h.Event.Validate()
}

func (h TransactionHit) validate() error {
	if h.Transaction == nil {
		return &ga.ValidationError{Entity: "transaction", Reason: "missing transaction"}
	}
	return h.Transaction.Validate()
}

func (h ItemHit) validate() error {
	if h.Item == nil {
		return &ga.ValidationError{Entity: "item", Reason: "missing item"}
	}
	return h.Item.Validate()
}

func (h SocialHit) validate() error {
	if h.Social == nil {
		return &ga.ValidationError{Entity: "social interaction", Reason: "missing social interaction"}
	}
	if h.Page == nil {
		return &ga.ValidationError{Entity: "page", Reason: "missing page"}
	}
	if err := h.Social.Validate(); err != nil {
		return err
	}
	return h.Page.Validate()
}

func (CustomVariableHit) validate() error { return nil }
