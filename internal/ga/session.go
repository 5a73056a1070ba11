package ga

import (
	"strconv"
	"strings"
	"time"

	"beacon-relay/internal/codec"
)

// MaxTrackCount is the documented per-session request limit of the collector.
const MaxTrackCount = 500

// Session mirrors the "__utmb" cookie. Keep it for as long as the end user's
// session lasts.
type Session struct {
	ID         uint32
	TrackCount int
	StartTime  time.Time
}

func NewSession() *Session {
	return &Session{
		ID:        codec.Random32(),
		StartTime: time.Now(),
	}
}

// IncrementTrackCount counts one outbound request. The counter is advanced
// even when the limit is exceeded.
func (s *Session) IncrementTrackCount() error {
	s.TrackCount++
	if s.TrackCount > MaxTrackCount {
		return invalid("session", "the collector does not process more than %d requests per session", MaxTrackCount)
	}
	return nil
}

// FromUtmb restores track count and start time from a "__utmb" cookie value
// (hash.trackCount.token.start).
func (s *Session) FromUtmb(value string) error {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return invalid("session", "invalid __utmb cookie value %q", value)
	}
	count, err := strconv.Atoi(parts[1])
	if err != nil || count < 0 {
		return invalid("session", "invalid track count %q", parts[1])
	}
	start, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return invalid("session", "invalid start time %q", parts[3])
	}
	s.TrackCount = count
	s.StartTime = time.Unix(start, 0)
	return nil
}
