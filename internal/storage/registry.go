// Package storage keeps the relay's per-client tracking state in memory.
package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"beacon-relay/internal/ga"
	"beacon-relay/internal/observability"
)

// Entry is the state of one client. Lock it while tracking; the tracking
// entities are not safe for concurrent use.
type Entry struct {
	sync.Mutex

	ClientID string
	Visitor  *ga.Visitor
	Session  *ga.Session
	Campaign *ga.Campaign

	// unix nanoseconds, written under the registry lock so sweeping never
	// waits for a client in the middle of a beacon
	lastSeen atomic.Int64
}

func (e *Entry) LastSeen() time.Time {
	return time.Unix(0, e.lastSeen.Load())
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	sessionTTL time.Duration
	visitorTTL time.Duration
	now        func() time.Time
}

// NewRegistry returns an empty registry. A client idle for sessionTTL gets
// a new session on its next request; one idle for visitorTTL is forgotten.
func NewRegistry(sessionTTL, visitorTTL time.Duration) *Registry {
	return &Registry{
		entries:    map[string]*Entry{},
		sessionTTL: sessionTTL,
		visitorTTL: visitorTTL,
		now:        time.Now,
	}
}

// Touch returns the entry for clientID, creating visitor and session on
// first sight and rolling the session over after sessionTTL. The returned
// entry is unlocked.
func (r *Registry) Touch(clientID string) *Entry {
	now := r.now()

	r.mu.Lock()
	e, ok := r.entries[clientID]
	if !ok {
		e = &Entry{ClientID: clientID}
		r.entries[clientID] = e
		observability.ActiveVisitors.Set(float64(len(r.entries)))
	}
	prev := time.Unix(0, e.lastSeen.Swap(now.UnixNano()))
	r.mu.Unlock()

	e.Lock()
	defer e.Unlock()
	switch {
	case e.Visitor == nil:
		e.Visitor = ga.NewVisitor()
		e.Visitor.FirstVisitTime, e.Visitor.PreviousVisitTime, e.Visitor.CurrentVisitTime = now, now, now
		e.Session = ga.NewSession()
		e.Session.StartTime = now
	case now.Sub(prev) > r.sessionTTL:
		e.Session = ga.NewSession()
		e.Session.StartTime = now
		e.Visitor.AddSession(e.Session)
		log.Debug().Str("client_id", clientID).Int("visits", e.Visitor.VisitCount).Msg("session rolled over")
	}
	return e
}

func (r *Registry) Get(clientID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[clientID]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep forgets clients idle for longer than visitorTTL and returns how many
// were removed. It never takes an entry lock.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.RLock()
	var stale []string
	for id, e := range r.entries {
		if now.Sub(e.LastSeen()) > r.visitorTTL {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, id := range stale {
		// touched since the scan
		if e, ok := r.entries[id]; ok && now.Sub(e.LastSeen()) > r.visitorTTL {
			delete(r.entries, id)
			removed++
		}
	}
	observability.ActiveVisitors.Set(float64(len(r.entries)))
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("registry sweeper stopped")
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					log.Info().Int("removed", n).Int("remaining", r.Len()).Msg("idle visitors swept")
				}
			}
		}
	}()
}
