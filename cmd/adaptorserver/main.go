// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Command adaptorserver is a minimal, runnable embedder: it loads
// configuration, wires the in-memory adaptortest.Adaptor into a
// Controller, and serves until SIGINT/SIGTERM. A real embedder
// replaces adaptortest.Adaptor with its own repository-backed
// implementation and otherwise follows this same shape.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/adaptorlib"
	"github.com/tomtom215/adaptorlib/internal/adaptortest"
	"github.com/tomtom215/adaptorlib/internal/config"
	"github.com/tomtom215/adaptorlib/internal/logging"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	repo := adaptortest.New()
	seedFixtures(repo)

	controller, err := adaptorlib.NewController(repo, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build controller")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := controller.Start(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to start controller")
	}
	logging.Info().Int("port", cfg.Server.Port).Msg("adaptorserver started")

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := controller.Stop(stopCtx, 10*time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logging.Error().Err(err).Msg("controller did not stop cleanly")
	}

	logging.Info().Msg("adaptorserver stopped")
}

// seedFixtures populates the in-memory repository with a couple of
// documents so the example program serves something on first run.
func seedFixtures(repo *adaptortest.Adaptor) {
	now := time.Now()
	repo.Put(&adaptortest.Document{
		ID:           "doc-public",
		Content:      []byte("anyone can read this"),
		ContentType:  "text/plain",
		LastModified: now,
	})
}
