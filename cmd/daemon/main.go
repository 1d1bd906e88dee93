// vidscribe daemon: intake server plus transcription worker pool in one
// process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/framefeed/vidscribe/internal/api"
	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/coordinator"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/policy"
	"github.com/framefeed/vidscribe/internal/queue"
	"github.com/framefeed/vidscribe/internal/transcribe"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{Service: "vidscribe"})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}

	policies, err := policy.Load(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("channel policy table invalid")
	}

	q, err := queue.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("broker connection failed")
	}
	defer q.Close()

	// The model handle loads once per process and is shared across handler
	// recycles; the coordinator around it is rebuilt by the factory.
	stt, err := transcribe.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("transcriber init failed")
	}

	factory := func() (queue.Handler, error) {
		c, err := coordinator.New(cfg, policies, stt)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	pool := queue.NewPool(q, factory, cfg.Queue)
	server := api.New(cfg, q, policies)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(ctx) })
	g.Go(func() error { return pool.Run(ctx) })

	logger.Info().
		Str("version", version).
		Int("concurrency", cfg.Queue.Concurrency).
		Strs("channels", policies.Channels()).
		Msg("vidscribe started")

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("shutdown complete")
}
