// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package incrpoll implements the incremental poller as a suture
// service: it ticks on a fixed period, asks the embedding Adaptor
// whether it has new or changed documents since the last poll, and
// suppresses overlapping ticks with an atomic busy flag so a slow
// adaptor can never have two PollIncremental calls in flight at once.
package incrpoll

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/internal/logging"
)

// Poller is the optional Adaptor capability this service drives.
type Poller interface {
	PollIncremental(ctx context.Context) error
}

// Service is a suture.Service that ticks Poller.PollIncremental every
// Period. Errors returned by PollIncremental are logged and swallowed:
// they are the adaptor's problem, not this service's, so they never
// propagate to suture (which would restart the whole service rather
// than just skip a tick).
type Service struct {
	Poller Poller
	Period time.Duration
	// Logger is used for warnings about skipped ticks and poll errors.
	// A nil Logger falls back to the package-wide default logger.
	Logger *zerolog.Logger

	busy atomic.Bool
}

func (s *Service) logger() zerolog.Logger {
	if s.Logger != nil {
		return *s.Logger
	}
	return logging.Logger()
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger().Warn().Msg("incremental poll tick skipped, previous poll still in flight")
		return
	}
	defer s.busy.Store(false)

	if err := s.Poller.PollIncremental(ctx); err != nil {
		s.logger().Err(err).Msg("incremental poll failed")
	}
}

// String implements fmt.Stringer for suture's service name in logs.
func (s *Service) String() string {
	return "incremental-poller"
}
