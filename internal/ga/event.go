package ga

type Event struct {
	Category string // e.g. "Videos"
	Action   string // e.g. "Play"
	Label    string
	Value    *int
	// NonInteraction keeps the hit out of bounce rate calculations.
	NonInteraction bool
}

func NewEvent(category, action string) *Event {
	return &Event{Category: category, Action: action}
}

func (e *Event) SetValue(v int) {
	e.Value = &v
}

func (e *Event) Validate() error {
	if e.Category == "" || e.Action == "" {
		return invalid("event", "events need at least to have a category and action defined")
	}
	return nil
}
