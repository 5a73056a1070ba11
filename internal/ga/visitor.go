package ga

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"beacon-relay/internal/codec"
)

// MaxUniqueID is the largest visitor id the collector accepts.
const MaxUniqueID = 0x7fffffff

// UniqueID is either unset or assigned; it is never generated as a side
// effect of reading it.
type UniqueID struct {
	value    uint32
	assigned bool
}

func (u UniqueID) Get() (uint32, bool) { return u.value, u.assigned }

func (u UniqueID) IsAssigned() bool { return u.assigned }

// Visitor mirrors the "__utma" cookie plus the browser attributes sent with
// each pageview. Persist it per end user to keep visits attributed.
type Visitor struct {
	uniqueID UniqueID

	FirstVisitTime    time.Time
	PreviousVisitTime time.Time
	CurrentVisitTime  time.Time
	VisitCount        int

	IPAddress        string
	UserAgent        string
	Locale           string // e.g. "de-DE", country part optional
	FlashVersion     string
	JavaEnabled      bool
	ScreenColorDepth int
	ScreenResolution string // e.g. "1024x768"
}

// NewVisitor creates a visitor without any previous visit. Like the browser
// client all three visit timestamps start out as now.
func NewVisitor() *Visitor {
	now := time.Now()
	return &Visitor{
		FirstVisitTime:    now,
		PreviousVisitTime: now,
		CurrentVisitTime:  now,
		VisitCount:        1,
	}
}

func (v *Visitor) UniqueID() UniqueID { return v.uniqueID }

func (v *Visitor) SetUniqueID(id int64) error {
	if id < 0 || id > MaxUniqueID {
		return invalid("visitor", "unique id has to be between 0 and %d, got %d", MaxUniqueID, id)
	}
	v.uniqueID = UniqueID{value: uint32(id), assigned: true}
	return nil
}

// AssignUniqueID generates an id from the current user attributes unless one
// is already assigned, and returns it.
func (v *Visitor) AssignUniqueID() uint32 {
	if !v.uniqueID.assigned {
		id := (codec.Random32() ^ uint32(v.hash())) & MaxUniqueID
		v.uniqueID = UniqueID{value: id, assigned: true}
	}
	return v.uniqueID.value
}

func (v *Visitor) hash() int {
	depth := ""
	if v.ScreenColorDepth > 0 {
		depth = strconv.Itoa(v.ScreenColorDepth)
	}
	return codec.Hash(v.UserAgent + v.ScreenResolution + depth)
}

// FromUtma restores id, visit times and visit count from a "__utma" cookie
// value (hash.id.first.previous.current.count).
func (v *Visitor) FromUtma(value string) error {
	parts := strings.Split(value, ".")
	if len(parts) != 6 {
		return invalid("visitor", "invalid __utma cookie value %q", value)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return invalid("visitor", "invalid unique id %q", parts[1])
	}
	var ts [3]time.Time
	for i := range ts {
		sec, err := strconv.ParseInt(parts[2+i], 10, 64)
		if err != nil {
			return invalid("visitor", "invalid visit time %q", parts[2+i])
		}
		ts[i] = time.Unix(sec, 0)
	}
	count, err := strconv.Atoi(parts[5])
	if err != nil || count < 1 {
		return invalid("visitor", "invalid visit count %q", parts[5])
	}
	if err := v.SetUniqueID(id); err != nil {
		return err
	}
	v.FirstVisitTime, v.PreviousVisitTime, v.CurrentVisitTime = ts[0], ts[1], ts[2]
	v.VisitCount = count
	return nil
}

// FromRequest takes IP address, user agent and preferred locale from an
// inbound request.
func (v *Visitor) FromRequest(r *http.Request) {
	if ip := publicIP(r); ip != "" {
		v.IPAddress = ip
	}
	if ua := r.UserAgent(); ua != "" {
		v.UserAgent = ua
	}
	if al := r.Header.Get("Accept-Language"); al != "" {
		// tags come back ordered by quality
		tags, _, err := language.ParseAcceptLanguage(al)
		if err == nil && len(tags) > 0 {
			v.Locale = tags[0].String()
		}
	}
}

// publicIP returns the last hop of X-Forwarded-For, falling back to the
// remote address. Private and non IPv4 addresses are ignored.
func publicIP(r *http.Request) string {
	candidates := []string{r.Header.Get("X-Forwarded-For")}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	} else {
		candidates = append(candidates, r.RemoteAddr)
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		hops := strings.Split(c, ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[len(hops)-1]))
		if err != nil || !addr.Is4() {
			continue
		}
		if addr.IsPrivate() || addr.IsLoopback() {
			continue
		}
		return addr.String()
	}
	return ""
}

// AddSession starts a new visit when the session began after the current one.
func (v *Visitor) AddSession(s *Session) {
	if !s.StartTime.Equal(v.CurrentVisitTime) {
		v.PreviousVisitTime = v.CurrentVisitTime
		v.CurrentVisitTime = s.StartTime
		v.VisitCount++
	}
}
