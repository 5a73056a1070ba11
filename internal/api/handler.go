package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"

	"beacon-relay/internal/cache"
	"beacon-relay/internal/config"
	"beacon-relay/internal/ga"
	"beacon-relay/internal/observability"
	"beacon-relay/internal/storage"
	"beacon-relay/internal/tracker"
	"beacon-relay/internal/transport"
)

// RelayHandler turns JSON tracking calls from backends into beacons.
type RelayHandler struct {
	Config   *cache.Snapshot[config.Config]
	Registry *storage.Registry
	Sender   transport.Sender
}

func NewRelayHandler(cfg *cache.Snapshot[config.Config], reg *storage.Registry, sender transport.Sender) *RelayHandler {
	return &RelayHandler{Config: cfg, Registry: reg, Sender: sender}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	VisitorID  uint32 `json:"visitor_id"`
	SessionID  uint32 `json:"session_id"`
	TrackCount int    `json:"track_count"`
}

func (h *RelayHandler) Pageview(w http.ResponseWriter, r *http.Request) {
	var req pageviewRequest
	if !decode(w, r, &req) {
		return
	}
	h.track(w, r, req.clientFields, func(tr *tracker.Tracker, e *storage.Entry) error {
		page, err := req.Page.toPage()
		if err != nil {
			return err
		}
		return tr.TrackPageview(r.Context(), page, e.Session, e.Visitor)
	})
}

func (h *RelayHandler) Event(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	h.track(w, r, req.clientFields, func(tr *tracker.Tracker, e *storage.Entry) error {
		return tr.TrackEvent(r.Context(), req.toEvent(), e.Session, e.Visitor)
	})
}

func (h *RelayHandler) Transaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decode(w, r, &req) {
		return
	}
	h.track(w, r, req.clientFields, func(tr *tracker.Tracker, e *storage.Entry) error {
		return tr.TrackTransaction(r.Context(), req.toTransaction(), e.Session, e.Visitor)
	})
}

func (h *RelayHandler) Social(w http.ResponseWriter, r *http.Request) {
	var req socialRequest
	if !decode(w, r, &req) {
		return
	}
	h.track(w, r, req.clientFields, func(tr *tracker.Tracker, e *storage.Entry) error {
		page, err := req.Page.toPage()
		if err != nil {
			return err
		}
		social := &ga.SocialInteraction{Network: req.Network, Action: req.Action, Target: req.Target}
		return tr.TrackSocial(r.Context(), social, page, e.Session, e.Visitor)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		observability.RequestErrors.WithLabelValues("decode").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// track resolves the client's state, prepares a tracker for it and runs fn
// with the client entry locked.
func (h *RelayHandler) track(w http.ResponseWriter, r *http.Request, c clientFields, fn func(*tracker.Tracker, *storage.Entry) error) {
	logger := log.With().Str("path", r.URL.Path).Str("client_id", c.ClientID).Logger()

	if c.ClientID == "" {
		observability.RequestErrors.WithLabelValues("client_id").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "client_id is required"})
		return
	}
	if ua := useragent.Parse(r.UserAgent()); ua.Bot {
		observability.RequestErrors.WithLabelValues("bot").Inc()
		logger.Debug().Str("agent", ua.Name).Msg("bot traffic ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cfg, ok := h.Config.Load()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "relay not configured"})
		return
	}

	entry := h.Registry.Touch(c.ClientID)
	entry.Lock()
	defer entry.Unlock()

	entry.Visitor.FromRequest(r)
	c.applyTo(entry.Visitor)

	tr, err := tracker.New(cfg.Relay.AccountID, cfg.Relay.DomainName, cfg.Tracker, h.Sender)
	if err != nil {
		observability.RequestErrors.WithLabelValues("config").Inc()
		logger.Error().Err(err).Msg("tracker setup")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "relay misconfigured"})
		return
	}
	tr.SetAllowHash(cfg.Relay.AllowHash)

	err = c.configure(tr, entry)
	if err == nil {
		err = fn(tr, entry)
	}
	// a hit swallowed under the warnings or silence severity was still
	// not sent
	if dropped := tr.Dropped(); err == nil && len(dropped) > 0 {
		err = dropped[0]
	}
	switch {
	case err == nil:
	case errors.Is(err, ga.ErrValidation):
		observability.RequestErrors.WithLabelValues("validation").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, transport.ErrTransport):
		observability.RequestErrors.WithLabelValues("transport").Inc()
		logger.Warn().Err(err).Msg("beacon not delivered")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "collector unavailable"})
		return
	default:
		observability.RequestErrors.WithLabelValues("internal").Inc()
		logger.Error().Err(err).Msg("tracking failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	uid, _ := entry.Visitor.UniqueID().Get()
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		VisitorID:  uid,
		SessionID:  entry.Session.ID,
		TrackCount: entry.Session.TrackCount,
	})
}
