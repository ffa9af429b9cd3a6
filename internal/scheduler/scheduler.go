// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package scheduler wraps robfig/cron/v3 with the narrow contract the
// adaptor core needs: register a cron-syntax schedule for a task,
// reschedule it in place when configuration changes (cron/v3 has no
// native reschedule, so this removes and re-adds the entry), and stop
// the whole schedule on shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/internal/logging"
)

// Scheduler runs cron-scheduled tasks and supports rescheduling an
// existing registration without duplicating it.
type Scheduler struct {
	cron   *cron.Cron
	logger *zerolog.Logger

	mu      sync.Mutex
	entries map[string]registration
}

type registration struct {
	id      cron.EntryID
	pattern string
	task    func(context.Context)
}

// New constructs a Scheduler. logger may be nil, in which case the
// package default logger is used.
func New(logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]registration),
	}
}

func (s *Scheduler) log() zerolog.Logger {
	if s.logger != nil {
		return *s.logger
	}
	return logging.Logger()
}

// Register adds task under name, running it on every tick matching
// pattern (standard 5-field cron syntax). Registering the same name
// twice replaces the previous schedule.
func (s *Scheduler) Register(name, pattern string, task func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing.id)
	}

	id, err := s.cron.AddFunc(pattern, func() { task(context.Background()) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid pattern %q for %q: %w", pattern, name, err)
	}

	s.entries[name] = registration{id: id, pattern: pattern, task: task}
	return nil
}

// Reschedule changes name's cron pattern. If pattern is invalid, the
// previous schedule is left running unchanged and an error is
// returned, per the invariant that a bad reschedule must not silently
// disable a running task.
func (s *Scheduler) Reschedule(name, pattern string) error {
	s.mu.Lock()
	existing, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("scheduler: no such registration %q", name)
	}
	if existing.pattern == pattern {
		return nil
	}

	newID, err := s.cron.AddFunc(pattern, func() { existing.task(context.Background()) })
	if err != nil {
		s.log().Warn().Err(err).Str("name", name).Str("pattern", pattern).
			Msg("invalid reschedule pattern, keeping previous schedule")
		return fmt.Errorf("scheduler: invalid pattern %q for %q: %w", pattern, name, err)
	}

	s.mu.Lock()
	s.cron.Remove(existing.id)
	s.entries[name] = registration{id: newID, pattern: pattern, task: existing.task}
	s.mu.Unlock()
	return nil
}

// Cancel removes name's schedule entirely.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing.id)
		delete(s.entries, name)
	}
}

// Start begins running scheduled tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight task
// invocations started by cron to finish, or ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConfigChange reschedules name to newPattern when it differs from
// the current pattern; an invalid pattern is logged and the previous
// schedule is kept. Nothing in the module calls it: there is no config
// subscriber list, and the Controller does not invoke it.
func (s *Scheduler) OnConfigChange(name, newPattern string) {
	if err := s.Reschedule(name, newPattern); err != nil {
		s.log().Warn().Err(err).Str("name", name).Msg("schedule reload rejected")
	}
}
