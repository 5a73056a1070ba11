package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"beacon-relay/internal/api"
	"beacon-relay/internal/cache"
	"beacon-relay/internal/config"
	"beacon-relay/internal/storage"
	"beacon-relay/internal/transport"
)

const (
	sweepInterval   = time.Minute
	visitorTTL      = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	// transport settings as of startup
	pinned config.Tracker

	cfg      *cache.Snapshot[config.Config]
	registry *storage.Registry
	sender   *transport.HTTPSender
	handler  http.Handler
}

// New wires the relay. Transport settings and the collector endpoint are
// fixed at startup; everything else follows Reload.
func New(cfg config.Config) *Server {
	sender := transport.NewHTTPSender(transport.Options{
		Scheme:         cfg.Tracker.EndpointScheme,
		Timeout:        cfg.Tracker.RequestTimeout,
		FireAndForget:  cfg.Tracker.FireAndForget,
		SendOnShutdown: cfg.Tracker.SendOnShutdown,
		OnRequest: func(req string, resp []byte) {
			log.Trace().Str("request", req).Int("response_bytes", len(resp)).Msg("beacon")
		},
	})
	snap := cache.NewSnapshot(cfg)
	registry := storage.NewRegistry(cfg.Relay.SessionTTL, visitorTTL)

	return &Server{
		pinned:   cfg.Tracker,
		cfg:      snap,
		registry: registry,
		sender:   sender,
		handler:  api.Router(api.NewRelayHandler(snap, registry, sender)),
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Reload swaps in cfg for all following requests. The transport settings,
// collector endpoint included, keep their startup values.
func (s *Server) Reload(cfg config.Config) {
	t := &cfg.Tracker
	t.EndpointScheme, t.EndpointHost, t.EndpointPath = s.pinned.EndpointScheme, s.pinned.EndpointHost, s.pinned.EndpointPath
	t.RequestTimeout = s.pinned.RequestTimeout
	t.FireAndForget, t.SendOnShutdown = s.pinned.FireAndForget, s.pinned.SendOnShutdown
	s.cfg.Store(cfg)
	log.Info().
		Str("account", cfg.Relay.AccountID).
		Str("severity", string(cfg.Tracker.ErrorSeverity)).
		Msg("relay configuration swapped")
}

// Run serves until ctx is done, then shuts the HTTP server down and drains
// the beacon queue.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	s.registry.StartSweeper(gctx, sweepInterval)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown...")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var result *multierror.Error
		if err := srv.Shutdown(shCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
		if err := s.sender.Close(shCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("beacon flush: %w", err))
		}
		return result.ErrorOrNil()
	})
	return g.Wait()
}
