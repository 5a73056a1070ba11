// Package transport delivers assembled beacons to the collector.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beacon-relay/internal/observability"
	"beacon-relay/internal/request"
)

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("beacon transport failed")

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Sender hands a payload to the collector. A nil response with a nil error
// means the beacon was not waited for or not sent at all (simulation,
// fire-and-forget, queued until shutdown).
type Sender interface {
	Send(ctx context.Context, p *request.Payload) ([]byte, error)
}

// LoggingCallback receives the raw request text and the response body, which
// is nil whenever the response was not read.
type LoggingCallback func(request string, response []byte)

type Options struct {
	Scheme  string
	Timeout time.Duration
	// FireAndForget submits the beacon without waiting for the response.
	FireAndForget bool
	// SendOnShutdown queues beacons until Flush is called.
	SendOnShutdown bool
	OnRequest      LoggingCallback
	Client         *http.Client
	Logger         *zerolog.Logger
}

const (
	defaultScheme  = "http"
	defaultTimeout = time.Second
)

// HTTPSender is the net/http Sender. Payloads with an empty host are never
// sent (simulation mode) but still reach the logging callback.
type HTTPSender struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger

	inflight sync.WaitGroup

	mu    sync.Mutex
	queue []*request.Payload
}

func NewHTTPSender(opts Options) *HTTPSender {
	if opts.Scheme == "" {
		opts.Scheme = defaultScheme
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := log.With().Str("component", "transport").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &HTTPSender{opts: opts, client: client, log: logger}
}

func (s *HTTPSender) Send(ctx context.Context, p *request.Payload) ([]byte, error) {
	if s.opts.SendOnShutdown {
		s.mu.Lock()
		s.queue = append(s.queue, p)
		s.mu.Unlock()
		observability.BeaconsQueued.Inc()
		s.log.Debug().Str("method", p.Method).Msg("beacon queued until shutdown")
		return nil, nil
	}
	return s.send(ctx, p)
}

func (s *HTTPSender) send(ctx context.Context, p *request.Payload) ([]byte, error) {
	if p.Host == "" {
		observability.BeaconsTotal.WithLabelValues("simulated", p.Method).Inc()
		s.notify(p, nil)
		return nil, nil
	}

	if s.opts.FireAndForget {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
			defer cancel()
			if _, err := s.roundTrip(ctx, p); err != nil {
				s.log.Warn().Err(err).Str("method", p.Method).Msg("fire-and-forget beacon failed")
			}
		}()
		observability.BeaconsTotal.WithLabelValues("forget", p.Method).Inc()
		s.notify(p, nil)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	body, err := s.roundTrip(ctx, p)
	if err != nil {
		return nil, err
	}
	observability.BeaconsTotal.WithLabelValues("wait", p.Method).Inc()
	s.notify(p, body)
	return body, nil
}

func (s *HTTPSender) roundTrip(ctx context.Context, p *request.Payload) ([]byte, error) {
	req, err := p.NewHTTPRequest(ctx, s.opts.Scheme)
	if err != nil {
		observability.BeaconErrors.WithLabelValues("request").Inc()
		return nil, &TransportError{Op: "request", Err: err}
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	observability.BeaconLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BeaconErrors.WithLabelValues("connect").Inc()
		return nil, &TransportError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.BeaconErrors.WithLabelValues("read").Inc()
		return nil, &TransportError{Op: "read", Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		observability.BeaconErrors.WithLabelValues("status").Inc()
		return nil, &TransportError{Op: "send", Err: fmt.Errorf("collector answered %s", resp.Status)}
	}

	s.log.Debug().
		Str("method", p.Method).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("beacon delivered")
	return body, nil
}

func (s *HTTPSender) notify(p *request.Payload, response []byte) {
	if s.opts.OnRequest != nil {
		s.opts.OnRequest(p.Dump(), response)
	}
}

// Pending reports how many beacons wait for Flush.
func (s *HTTPSender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush sends every queued beacon and returns all failures combined.
func (s *HTTPSender) Flush(ctx context.Context) error {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	observability.BeaconsQueued.Sub(float64(len(queue)))

	var result *multierror.Error
	for _, p := range queue {
		if _, err := s.send(ctx, p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(queue) > 0 {
		s.log.Info().Int("beacons", len(queue)).Msg("shutdown queue flushed")
	}
	return result.ErrorOrNil()
}

// Wait blocks until every fire-and-forget beacon finished or ctx is done.
func (s *HTTPSender) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes the shutdown queue and waits for in-flight beacons.
func (s *HTTPSender) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.Flush(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.Wait(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
