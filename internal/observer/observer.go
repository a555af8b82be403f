// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package observer schedules the monitors and glues sampling to evaluation
// and reporting. Each observer owns its sample series and runs on its own
// periodic schedule; the engine is the only path from a filled series to the
// health and telemetry sinks.
package observer // import "github.com/hostwatch/hostwatch/internal/observer"

import (
	"context"
	"time"
)

// RunContext carries the scheduling facts of the current cycle. Report TTLs
// are derived from it so a report always outlives the gap until the next
// scheduled refresh.
type RunContext struct {
	// RunID correlates reports, telemetry and traces from one cycle.
	RunID string

	// LastRun is when the previous cycle started, zero on the first run.
	LastRun time.Time

	// RunDuration is how long the previous cycle took.
	RunDuration time.Duration

	// PollInterval is the observer's schedule period.
	PollInterval time.Duration

	// RunInterval is an explicit per-observer interval override, zero when
	// the observer runs on the plain poll schedule.
	RunInterval time.Duration
}

// Observer is one scheduled monitor. Observe samples its resource category
// and pushes every filled series through the engine before returning.
// Disabled observers are skipped at registration.
type Observer interface {
	Name() string
	Enabled() bool
	Observe(ctx context.Context, rc RunContext) error
}
