package ga

type SocialInteraction struct {
	Network string // utmsn, e.g. "Facebook"
	Action  string // utmsa, e.g. "Like"
	// Target defaults to the page path when empty.
	Target string
}

func (s *SocialInteraction) Validate() error {
	if s.Network == "" || s.Action == "" {
		return invalid("social interaction", `social interactions need to have at least the "network" and "action" attributes defined`)
	}
	return nil
}
