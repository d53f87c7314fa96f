// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/testutil"
)

type fakeTimer struct {
	waits chan time.Duration
	fire  chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{waits: make(chan time.Duration), fire: make(chan time.Time)}
}

func (f *fakeTimer) after(d time.Duration) <-chan time.Time {
	f.waits <- d
	return f.fire
}

func TestScheduler(t *testing.T) {
	t.Parallel()

	results := make(chan func() error)
	runs := make(chan struct{})
	s := New(Config{
		Run: func(context.Context) error {
			runs <- struct{}{}
			return (<-results)()
		},
		InitialDelay: time.Second,
		Interval:     time.Minute,
		Cooldown:     time.Hour,
	})
	ft := newFakeTimer()
	s.after = ft.after

	ctx, cancel := context.WithCancel(logger.Put(t.Context(), logger.New(io.Discard)))
	done := make(chan error)
	go func() { done <- s.Start(ctx) }()

	step := func(wantWait time.Duration, fire bool, result func() error) {
		t.Helper()
		testutil.AssertEqual(t, <-ft.waits, wantWait)
		if fire {
			ft.fire <- time.Now()
		} else {
			testutil.AssertEqual(t, s.Trigger(), true)
		}
		<-runs
		testutil.AssertEqual(t, s.Running(), true)
		results <- result
	}

	ok := func() error { return nil }
	step(time.Second, true, func() error { return errors.New("boom") })
	step(time.Hour, true, ok)
	step(time.Minute, false, ok)
	step(time.Minute, true, func() error { panic("oops") })
	step(time.Hour, true, ok)

	testutil.AssertEqual(t, <-ft.waits, time.Minute)
	testutil.AssertEqual(t, s.Running(), false)
	testutil.AssertEqual(t, s.Runs(), int64(5))

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() = %v, want nil", err)
	}
}

func TestTriggerDoesNotBlock(t *testing.T) {
	t.Parallel()

	s := New(Config{Run: func(context.Context) error { return nil }})
	testutil.AssertEqual(t, s.Trigger(), true)
	testutil.AssertEqual(t, s.Trigger(), false)
}

func TestStartStopsWhenCanceled(t *testing.T) {
	t.Parallel()

	s := New(Config{Run: func(context.Context) error {
		t.Fatal("must not run")
		return nil
	}, InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestCanceledRunStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	s := New(Config{Run: func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}})
	s.Trigger()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, s.Runs(), int64(1))
}
