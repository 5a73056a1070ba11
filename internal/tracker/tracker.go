// Package tracker is the entry point for sending beacons: it owns the
// account settings, the page-independent custom variables and the campaign,
// and turns Track* calls into delivered requests.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beacon-relay/internal/config"
	"beacon-relay/internal/ga"
	"beacon-relay/internal/params"
	"beacon-relay/internal/request"
	"beacon-relay/internal/transport"
)

// Tracker is not safe for concurrent use; callers sharing one serialize
// access themselves.
type Tracker struct {
	accountID  string
	domainName string
	allowHash  bool

	cfg    config.Tracker
	sender transport.Sender
	log    zerolog.Logger
	rand   func() uint32

	customVariables map[int]*ga.CustomVariable
	campaign        *ga.Campaign
	legacyVar       string

	dropped []error
}

type Option func(*Tracker)

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithRand replaces the request nonce source.
func WithRand(f func() uint32) Option {
	return func(t *Tracker) { t.rand = f }
}

// New validates the account id and returns a tracker. A nil sender gets an
// HTTP sender configured from cfg.
func New(accountID, domainName string, cfg config.Tracker, sender transport.Sender, opts ...Option) (*Tracker, error) {
	if !config.AccountIDPattern.MatchString(accountID) {
		return nil, &config.ConfigurationError{Key: "account_id", Err: fmt.Errorf("%q is not a valid account id", accountID)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		sender = transport.NewHTTPSender(transport.Options{
			Scheme:         cfg.EndpointScheme,
			Timeout:        cfg.RequestTimeout,
			FireAndForget:  cfg.FireAndForget,
			SendOnShutdown: cfg.SendOnShutdown,
		})
	}

	t := &Tracker{
		accountID:       accountID,
		domainName:      domainName,
		allowHash:       true,
		cfg:             cfg,
		sender:          sender,
		log:             log.With().Str("component", "tracker").Str("account", accountID).Logger(),
		customVariables: map[int]*ga.CustomVariable{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tracker) AccountID() string  { return t.accountID }
func (t *Tracker) DomainName() string { return t.domainName }
func (t *Tracker) AllowHash() bool    { return t.allowHash }

// SetAllowHash toggles the domain hash in the emulated cookies; disabled,
// every cookie starts with 1.
func (t *Tracker) SetAllowHash(allow bool) { t.allowHash = allow }

// AddCustomVariable sets the variable for all following requests, replacing
// any variable in the same slot.
func (t *Tracker) AddCustomVariable(cv *ga.CustomVariable) error {
	if cv == nil {
		return t.fail(&ga.ValidationError{Entity: "custom variable", Reason: "missing custom variable"})
	}
	if err := cv.Validate(); err != nil {
		return t.fail(err)
	}
	t.customVariables[cv.Index] = cv
	return nil
}

func (t *Tracker) RemoveCustomVariable(index int) {
	delete(t.customVariables, index)
}

// CustomVariables returns the active variables ordered by slot.
func (t *Tracker) CustomVariables() []*ga.CustomVariable {
	out := make([]*ga.CustomVariable, 0, len(t.customVariables))
	for _, cv := range t.customVariables {
		out = append(out, cv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// SetCampaign attributes all following requests to c; nil clears it.
func (t *Tracker) SetCampaign(c *ga.Campaign) error {
	if c != nil {
		if err := c.Validate(); err != nil {
			return t.fail(err)
		}
	}
	t.campaign = c
	return nil
}

func (t *Tracker) Campaign() *ga.Campaign { return t.campaign }

// SetVar sets the legacy user-defined value carried in __utmv. An empty
// value clears it.
func (t *Tracker) SetVar(value string) { t.legacyVar = value }

func (t *Tracker) TrackPageview(ctx context.Context, page *ga.Page, session *ga.Session, visitor *ga.Visitor) error {
	return t.track(ctx, params.Pageview{Page: page}, session, visitor)
}

func (t *Tracker) TrackEvent(ctx context.Context, event *ga.Event, session *ga.Session, visitor *ga.Visitor) error {
	return t.track(ctx, params.EventHit{Event: event}, session, visitor)
}

// TrackTransaction sends the transaction followed by one request per item,
// in the order the items were added.
func (t *Tracker) TrackTransaction(ctx context.Context, tx *ga.Transaction, session *ga.Session, visitor *ga.Visitor) error {
	if err := t.track(ctx, params.TransactionHit{Transaction: tx}, session, visitor); err != nil {
		return err
	}
	if tx == nil {
		return nil
	}
	for _, item := range tx.Items() {
		if err := t.track(ctx, params.ItemHit{Item: item}, session, visitor); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) TrackSocial(ctx context.Context, social *ga.SocialInteraction, page *ga.Page, session *ga.Session, visitor *ga.Visitor) error {
	return t.track(ctx, params.SocialHit{Social: social, Page: page}, session, visitor)
}

// TrackVar announces the value set with SetVar.
func (t *Tracker) TrackVar(ctx context.Context, session *ga.Session, visitor *ga.Visitor) error {
	return t.track(ctx, params.CustomVariableHit{}, session, visitor)
}

func (t *Tracker) track(ctx context.Context, hit params.Hit, session *ga.Session, visitor *ga.Visitor) error {
	if visitor != nil && !visitor.UniqueID().IsAssigned() {
		visitor.AssignUniqueID()
	}

	builder := params.NewBuilder(params.Settings{
		AccountID:           t.accountID,
		DomainName:          t.domainName,
		AllowHash:           t.allowHash,
		AnonymizeIP:         t.cfg.AnonymizeIPAddresses,
		SitespeedSampleRate: t.cfg.SitespeedSampleRate,
	})
	if t.rand != nil {
		builder.Rand = t.rand
	}

	set, err := builder.Build(hit, params.State{
		Visitor:         visitor,
		Session:         session,
		Campaign:        t.campaign,
		CustomVariables: t.CustomVariables(),
		LegacyVar:       t.legacyVar,
	})
	if err != nil {
		return t.fail(err)
	}

	payload := request.Assembler{Host: t.cfg.EndpointHost, Path: t.cfg.EndpointPath}.
		Assemble(set, visitor.UserAgent, visitor.IPAddress)
	if _, err := t.sender.Send(ctx, payload); err != nil {
		return fmt.Errorf("track %s: %w", hit.Kind(), err)
	}

	t.log.Debug().
		Str("kind", hit.Kind().String()).
		Str("method", payload.Method).
		Int("bytes", len(payload.Query)).
		Msg("beacon sent")
	return nil
}

// Dropped returns the validation errors swallowed under the warnings and
// silence severities, oldest first.
func (t *Tracker) Dropped() []error {
	return append([]error(nil), t.dropped...)
}

// fail applies the error severity to validation errors. Anything else is
// returned unchanged.
func (t *Tracker) fail(err error) error {
	if !errors.Is(err, ga.ErrValidation) {
		return err
	}
	switch t.cfg.ErrorSeverity {
	case config.SeveritySilence:
		t.dropped = append(t.dropped, err)
		return nil
	case config.SeverityWarnings:
		t.log.Warn().Err(err).Msg("tracking request dropped")
		t.dropped = append(t.dropped, err)
		return nil
	default:
		return err
	}
}
