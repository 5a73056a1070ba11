package ga

import "beacon-relay/internal/codec"

type Scope int

const (
	ScopeVisitor Scope = 1
	ScopeSession Scope = 2
	ScopePage    Scope = 3
)

const (
	MaxCustomVariables = 5
	// MaxCustomVariableSize limits the URL-encoded name plus value.
	MaxCustomVariableSize = 64
)

// CustomVariable occupies one of the five slots. The collector does not
// decode names and values, so encoded characters show up as is in reports.
type CustomVariable struct {
	Index int
	Name  string
	Value string
	Scope Scope
}

// NewCustomVariable validates index and scope; a zero scope means page.
func NewCustomVariable(index int, name, value string, scope Scope) (*CustomVariable, error) {
	if scope == 0 {
		scope = ScopePage
	}
	cv := &CustomVariable{Index: index, Name: name, Value: value, Scope: scope}
	if err := cv.validateSlot(); err != nil {
		return nil, err
	}
	return cv, nil
}

func (c *CustomVariable) validateSlot() error {
	if c.Index < 1 || c.Index > MaxCustomVariables {
		return invalid("custom variable", "index has to be between 1 and %d, got %d", MaxCustomVariables, c.Index)
	}
	switch c.Scope {
	case ScopeVisitor, ScopeSession, ScopePage:
	default:
		return invalid("custom variable", "unknown scope %d", c.Scope)
	}
	return nil
}

func (c *CustomVariable) Validate() error {
	if err := c.validateSlot(); err != nil {
		return err
	}
	if n := len(codec.EncodeURIComponent(c.Name + c.Value)); n > MaxCustomVariableSize {
		return invalid("custom variable", "combined encoded name and value must not be larger than %d bytes, got %d", MaxCustomVariableSize, n)
	}
	return nil
}
