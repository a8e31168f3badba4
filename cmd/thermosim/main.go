package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/thermoctl/internal/device"
	"github.com/danmuck/thermoctl/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "", "simulator config path")
	addr := flag.String("addr", "", "listen address override")
	check := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := defaultSimConfig()
	if *path != "" {
		loaded, err := loadSimConfig(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "thermosim: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *check {
		fmt.Printf("thermosim: config ok (%d nodes, %d channels)\n", len(cfg.Fixture.Nodes), len(cfg.Fixture.Channels))
		return
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "thermosim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg simConfig) error {
	mem := device.NewMemory()
	if err := mem.Apply(ctx, cfg.Fixture); err != nil {
		return fmt.Errorf("apply fixture: %w", err)
	}

	srv := device.NewServer(cfg.Server, mem)
	if _, err := srv.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if cfg.FeedInterval > 0 && len(cfg.Fixture.Nodes) > 0 {
		feed, err := device.NewFeed(mem, cfg.Seed)
		if err != nil {
			return fmt.Errorf("feed: %w", err)
		}
		go func() {
			if err := feed.Run(ctx, cfg.FeedInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("thermosim: feed stopped")
			}
		}()
	}

	log.Info().
		Int("nodes", len(cfg.Fixture.Nodes)).
		Int("channels", len(cfg.Fixture.Channels)).
		Int("drop_every", cfg.Server.DropEvery).
		Dur("feed_interval", cfg.FeedInterval).
		Msg("thermosim: hub ready")
	return srv.Serve(ctx)
}
