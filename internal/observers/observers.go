// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package observers holds the concrete monitors: application processes, the
// node itself, its disks and its certificates. Each observer samples one
// resource category and hands filled series to the evaluation engine; the
// engine owns thresholds, health reporting and dump gating.
package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"errors"
	"time"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/usage"
)

// IANA dynamic port range, used when the kernel range cannot be read.
const (
	defaultEphemeralLow  = 49152
	defaultEphemeralHigh = 65535
)

// maxPortNumber scales the machine-wide active port count to a percentage.
const maxPortNumber = 65535

var errUnsupportedStat = errors.New("counter not available on this platform")

// Engine is the slice of the evaluation engine observers drive. Satisfied by
// *observer.Engine.
type Engine interface {
	ProcessSeries(ctx context.Context, rc observer.RunContext, in observer.SeriesInput) error
	ProcessDecision(ctx context.Context, rc observer.RunContext, in observer.DecisionInput) error
}

// seriesTable keeps one series per (entity, metric) across runs, so breach
// marks survive between cycles and a restarted process resumes its series.
type seriesTable struct {
	m map[string]*usage.Series
}

func newSeriesTable() *seriesTable {
	return &seriesTable{m: make(map[string]*usage.Series)}
}

func (t *seriesTable) get(entityID string, metric classify.Metric) *usage.Series {
	key := entityID + "|" + string(metric)
	s, ok := t.m[key]
	if !ok {
		s = usage.NewSeries(entityID, metric, 0)
		t.m[key] = s
	}
	return s
}

// FloorThresholds breach when a value falls to or at the configured floor,
// for metrics where scarcity is the problem: disk space left, days until a
// certificate expires. A zero level is not configured and never breaches.
type FloorThresholds struct {
	Warning float64
	Error   float64
}

// Configured reports whether at least one floor is set.
func (t FloorThresholds) Configured() bool {
	return t.Warning > 0 || t.Error > 0
}

// floorDecision mirrors eval.Evaluate for downward breaches: Error is tested
// first and the comparison is inclusive.
func floorDecision(m classify.Metric, kind entity.Kind, value float64, t FloorThresholds) eval.Decision {
	dec := eval.Decision{Severity: health.SeverityOk, Value: value}
	switch {
	case t.Error > 0 && value <= t.Error:
		dec.Severity = health.SeverityError
		dec.Threshold = t.Error
	case t.Warning > 0 && value <= t.Warning:
		dec.Severity = health.SeverityWarning
		dec.Threshold = t.Warning
	}
	dec.Code = eval.ResolveCode(m, kind, dec.Severity)
	return dec
}

// sleepCtx pauses between samples without outliving the run context.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const mib = 1024 * 1024

func bytesToMB(b uint64) float64 {
	return float64(b) / mib
}
