package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"beacon-relay/internal/app/server"
	"beacon-relay/internal/config"
	"beacon-relay/props"
)

func main() {
	propsPath := flag.String("tracker-props", "", "YAML file with tracker properties, overrides the tracker section")
	flag.Parse()

	v := config.New()
	cfg, err := config.Decode(v)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg.Server.LogLevel)

	var overrides *config.Tracker
	if *propsPath != "" {
		p, err := props.Load(*propsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load tracker properties")
		}
		t, err := config.TrackerFromMap(p)
		if err != nil {
			log.Fatal().Err(err).Str("file", *propsPath).Msg("tracker properties")
		}
		overrides = &t
		cfg.Tracker = t
	}

	srv := server.New(cfg)
	config.Watch(v, func(c config.Config) {
		if overrides != nil {
			c.Tracker = *overrides
		}
		srv.Reload(c)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
