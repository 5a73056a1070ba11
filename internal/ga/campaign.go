package ga

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

type CampaignType string

const (
	CampaignDirect   CampaignType = "direct"
	CampaignOrganic  CampaignType = "organic"
	CampaignReferral CampaignType = "referral"
)

// Campaign mirrors the "__utmz" cookie. Persist it per end user so that the
// attribution survives across sessions.
type Campaign struct {
	Type          CampaignType
	CreationTime  time.Time
	ResponseCount int

	ID       string // utm_id
	Source   string // utm_source, required
	GClickID string // gclid
	DClickID string // dclid
	Name     string // utm_campaign
	Medium   string // utm_medium
	Term     string // utm_term
	Content  string // utm_content
}

// NewCampaign creates a campaign with the defaults the browser client uses
// for each type.
func NewCampaign(t CampaignType) (*Campaign, error) {
	c := &Campaign{Type: t, CreationTime: time.Now()}
	switch t {
	case CampaignDirect:
		c.Name = "(direct)"
		c.Source = "(direct)"
		c.Medium = "(none)"
	case CampaignReferral:
		c.Name = "(referral)"
		c.Medium = "referral"
	case CampaignOrganic:
		c.Name = "(organic)"
		c.Medium = "organic"
	default:
		return nil, invalid("campaign", "unknown campaign type %q", t)
	}
	return c, nil
}

// CampaignFromReferrer builds a referral campaign whose source is the
// referrer's host and content its path.
func CampaignFromReferrer(rawURL string) (*Campaign, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalid("campaign", "invalid referrer %q: %v", rawURL, err)
	}
	c, _ := NewCampaign(CampaignReferral)
	c.Source = u.Hostname()
	c.Content = u.Path
	return c, nil
}

func (c *Campaign) Validate() error {
	if c.Source == "" {
		return invalid("campaign", `campaigns need to have at least the "source" attribute defined`)
	}
	return nil
}

func (c *Campaign) IncrementResponseCount() {
	c.ResponseCount++
}

// IsNew reports whether the current response is the first one attributed to
// this campaign.
func (c *Campaign) IsNew() bool {
	return c.ResponseCount <= 1
}

// utmzKeys maps the "__utmz" keys to the campaign fields, in wire order.
var utmzKeys = []string{"utmcid", "utmcsr", "utmgclid", "utmdclid", "utmccn", "utmcmd", "utmctr", "utmcct"}

// Fields returns the populated attribution fields in wire order.
func (c *Campaign) Fields() [][2]string {
	values := []string{c.ID, c.Source, c.GClickID, c.DClickID, c.Name, c.Medium, c.Term, c.Content}
	out := make([][2]string, 0, len(values))
	for i, v := range values {
		if v != "" {
			out = append(out, [2]string{utmzKeys[i], v})
		}
	}
	return out
}

// FromUtmz restores a campaign from a "__utmz" cookie value
// (hash.created.visits.responses.key=value|key=value).
func (c *Campaign) FromUtmz(value string) error {
	parts := strings.SplitN(value, ".", 5)
	if len(parts) != 5 {
		return invalid("campaign", "invalid __utmz cookie value %q", value)
	}
	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return invalid("campaign", "invalid creation time %q", parts[1])
	}
	responses, err := strconv.Atoi(parts[3])
	if err != nil {
		return invalid("campaign", "invalid response count %q", parts[3])
	}
	c.CreationTime = time.Unix(created, 0)
	c.ResponseCount = responses

	for _, pair := range strings.Split(parts[4], "|") {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		v, err := url.PathUnescape(raw)
		if err != nil {
			v = raw
		}
		switch key {
		case "utmcid":
			c.ID = v
		case "utmcsr":
			c.Source = v
		case "utmgclid":
			c.GClickID = v
		case "utmdclid":
			c.DClickID = v
		case "utmccn":
			c.Name = v
		case "utmcmd":
			c.Medium = v
		case "utmctr":
			c.Term = v
		case "utmcct":
			c.Content = v
		}
	}
	return nil
}
