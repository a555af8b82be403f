// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observer // import "github.com/hostwatch/hostwatch/internal/observer"

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hostwatch/hostwatch/internal/selfmetrics"
)

// managedObserver is one observer plus its schedule and run bookkeeping. The
// bookkeeping fields are only touched by the observer's own loop goroutine.
type managedObserver struct {
	obs         Observer
	interval    time.Duration
	runInterval time.Duration

	lastRun      time.Time
	lastDuration time.Duration
}

// Manager runs each registered observer on its own ticker until the context
// is cancelled. One failing or panicking observer never stops the others.
type Manager struct {
	logger     *zap.Logger
	jitter     time.Duration
	runTimeout time.Duration
	now        func() time.Time
	entries    []*managedObserver
}

// NewManager builds an empty manager. jitter spreads the first run of each
// observer over the given window so schedules do not align; runTimeout
// bounds a single run, zero for no bound.
func NewManager(logger *zap.Logger, jitter, runTimeout time.Duration) *Manager {
	return &Manager{
		logger:     logger,
		jitter:     jitter,
		runTimeout: runTimeout,
		now:        time.Now,
	}
}

// Register adds an observer on the given poll interval. runInterval is the
// explicit per-observer override carried into TTL derivation, zero for none.
// Disabled observers are logged and skipped.
func (m *Manager) Register(obs Observer, interval, runInterval time.Duration) {
	if !obs.Enabled() {
		m.logger.Info("Observer disabled", zap.String("observer", obs.Name()))
		return
	}
	m.entries = append(m.entries, &managedObserver{
		obs:         obs,
		interval:    interval,
		runInterval: runInterval,
	})
}

// Observers returns the names of everything registered, in registration order.
func (m *Manager) Observers() []string {
	names := make([]string, 0, len(m.entries))
	for _, mo := range m.entries {
		names = append(names, mo.obs.Name())
	}
	return names
}

// Run blocks until ctx is cancelled, running every observer on its schedule.
// Cancellation is a clean shutdown, not an error.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.entries) == 0 {
		return errors.New("no observers registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, mo := range m.entries {
		g.Go(func() error {
			return m.runLoop(gctx, mo)
		})
	}
	m.logger.Info("Observer schedules started", zap.Int("observers", len(m.entries)))

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// RunOnce runs every observer a single time, sequentially, and aggregates
// their failures. Used by the one-shot check command.
func (m *Manager) RunOnce(ctx context.Context) error {
	var errs error
	for _, mo := range m.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.runObserver(ctx, mo); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", mo.obs.Name(), err))
		}
	}
	return errs
}

func (m *Manager) runLoop(ctx context.Context, mo *managedObserver) error {
	if m.jitter > 0 {
		delay := time.Duration(rand.Int64N(int64(m.jitter)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()

	for {
		// Run failures are logged and counted inside runObserver; the loop
		// only ends with the context.
		_ = m.runObserver(ctx, mo)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) runObserver(ctx context.Context, mo *managedObserver) error {
	rc := RunContext{
		RunID:        uuid.NewString(),
		LastRun:      mo.lastRun,
		RunDuration:  mo.lastDuration,
		PollInterval: mo.interval,
		RunInterval:  mo.runInterval,
	}

	runCtx := ctx
	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}

	start := m.now()
	err := m.observeSafely(runCtx, mo.obs, rc)
	elapsed := m.now().Sub(start)

	mo.lastRun = start
	mo.lastDuration = elapsed

	outcome := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = "timeout"
		m.logger.Warn("Observer run exceeded its timeout",
			zap.String("observer", mo.obs.Name()),
			zap.String("run_id", rc.RunID),
			zap.Duration("timeout", m.runTimeout))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
		m.logger.Warn("Observer run failed",
			zap.String("observer", mo.obs.Name()),
			zap.String("run_id", rc.RunID),
			zap.Error(err))
	}
	selfmetrics.ObserverRuns.WithLabelValues(mo.obs.Name(), outcome).Inc()
	selfmetrics.ObserverRunSeconds.WithLabelValues(mo.obs.Name()).Observe(elapsed.Seconds())

	if err == nil {
		m.logger.Debug("Observer run completed",
			zap.String("observer", mo.obs.Name()),
			zap.String("run_id", rc.RunID),
			zap.Duration("took", elapsed))
	}
	return err
}

// observeSafely converts an observer panic into an error so one broken
// monitor cannot take the agent down.
func (m *Manager) observeSafely(ctx context.Context, obs Observer, rc RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	return obs.Observe(ctx, rc)
}
