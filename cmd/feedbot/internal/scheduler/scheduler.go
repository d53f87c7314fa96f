// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package scheduler runs a job periodically.
package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.astrophena.name/feedbot/internal/logger"
)

// Default timings.
const (
	DefaultInterval = 5 * time.Minute
	DefaultCooldown = 5 * time.Minute
)

// Config configures a Scheduler.
type Config struct {
	// Run is the job.
	Run func(context.Context) error
	// InitialDelay is the delay before the first run.
	InitialDelay time.Duration
	// Interval is the delay between the end of a successful run and the
	// start of the next one. If zero, DefaultInterval.
	Interval time.Duration
	// Cooldown replaces Interval after a failed run. If zero,
	// DefaultCooldown.
	Cooldown time.Duration
}

// Scheduler runs a job periodically. A run that returns an error or panics
// is logged and followed by a cooldown.
type Scheduler struct {
	run          func(context.Context) error
	initialDelay time.Duration
	interval     time.Duration
	cooldown     time.Duration

	trigger chan struct{}
	running atomic.Bool
	runs    atomic.Int64

	after func(time.Duration) <-chan time.Time // for tests
}

// New returns a new Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		run:          cfg.Run,
		initialDelay: cfg.InitialDelay,
		interval:     cmp.Or(cfg.Interval, DefaultInterval),
		cooldown:     cmp.Or(cfg.Cooldown, DefaultCooldown),
		trigger:      make(chan struct{}, 1),
		after:        time.After,
	}
}

// Trigger requests an immediate run and returns without waiting for it. It
// returns false if a requested run is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Running reports whether the job is running right now.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Runs returns the number of started runs.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Start runs the job until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	l := logger.Get(ctx)
	wait := s.initialDelay
	for {
		l.DebugContext(ctx, "waiting for the next run", "wait", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(wait):
		case <-s.trigger:
			l.InfoContext(ctx, "run triggered")
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait = s.interval
		if err != nil {
			l.ErrorContext(ctx, "run failed, cooling down", "error", err, "cooldown", s.cooldown)
			wait = s.cooldown
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	s.running.Store(true)
	s.runs.Add(1)
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return s.run(ctx)
}
