// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observer // import "github.com/hostwatch/hostwatch/internal/observer"

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/csvlog"
	"github.com/hostwatch/hostwatch/internal/dump"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/report"
	"github.com/hostwatch/hostwatch/internal/selfmetrics"
	"github.com/hostwatch/hostwatch/internal/usage"
)

// Dumper gates and performs diagnostic captures. Nil disables captures.
type Dumper interface {
	TryCapture(ctx context.Context, t dump.Target) bool
}

// SeriesInput is one filled sample series with everything the engine needs
// to evaluate and attribute it.
type SeriesInput struct {
	Series     *usage.Series
	Entity     entity.Descriptor
	Thresholds eval.Thresholds
	Observer   string

	// Aggregated marks series whose values were already rolled up into a
	// parent entity; raw telemetry is suppressed for them.
	Aggregated bool

	// Dump requests a diagnostic capture when the evaluation breaches. The
	// coordinator still applies its own gates.
	Dump bool
}

// DecisionInput carries a decision the observer made itself, for metrics the
// threshold comparison does not fit (certificate expiry breaches downward).
type DecisionInput struct {
	Entity   entity.Descriptor
	Metric   classify.Metric
	Decision eval.Decision
	Observer string
}

// Engine runs one series through evaluate → ttl → capture → report and
// resets the series for the next cycle. Stateless apart from the injected
// collaborators, so independent observer schedules share one instance.
type Engine struct {
	logger   *zap.Logger
	reporter *report.Reporter
	dumper   Dumper
	csv      *csvlog.Logger
	now      func() time.Time
}

func NewEngine(logger *zap.Logger, reporter *report.Reporter, dumper Dumper, csv *csvlog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		reporter: reporter,
		dumper:   dumper,
		csv:      csv,
		now:      time.Now,
	}
}

// ProcessSeries evaluates the series and emits the outcome. The series is
// cleared before returning: samples never leak across cycles, while the
// series' own breach mark survives until the breach resolves. The only
// error returned is context cancellation.
func (e *Engine) ProcessSeries(ctx context.Context, rc RunContext, in SeriesInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !in.Thresholds.Configured() {
		in.Series.ClearSamples()
		return nil
	}
	if in.Series.Count() == 0 {
		return nil
	}

	dec := eval.Evaluate(in.Series, in.Thresholds, in.Entity.Kind)
	selfmetrics.Evaluations.WithLabelValues(in.Observer, string(dec.Severity)).Inc()
	e.logDataRows(in)

	ttl := eval.ReportTTL(e.now(), rc.LastRun, rc.RunDuration, rc.PollInterval, rc.RunInterval)

	if dec.Severity.Breach() {
		in.Series.SetBreach(dec.Code)
		if in.Dump && e.dumper != nil {
			e.dumper.TryCapture(ctx, dump.Target{
				ProcessID:   in.Entity.ProcessID,
				ProcessName: in.Entity.ProcessName,
				Metric:      in.Series.Metric,
				Severity:    dec.Severity,
			})
		}
	}

	err := e.reporter.Report(ctx, report.Observation{
		Entity:     in.Entity,
		Observer:   in.Observer,
		Metric:     in.Series.Metric,
		Decision:   dec,
		TTL:        ttl,
		RunID:      rc.RunID,
		Aggregated: in.Aggregated,
	})
	if err != nil {
		return err
	}

	if !dec.Severity.Breach() {
		in.Series.ClearBreach()
	}
	in.Series.ClearSamples()
	return nil
}

// logDataRows appends the cycle's average and peak to the entity's csv data
// file. Data logging is best effort.
func (e *Engine) logDataRows(in SeriesInput) {
	if !e.csv.Enabled() {
		return
	}
	ts := e.now()
	err := e.csv.Append(in.Entity.Name, in.Series.Metric, "average", in.Series.Average(), ts)
	if err == nil {
		err = e.csv.Append(in.Entity.Name, in.Series.Metric, "max", in.Series.Max(), ts)
	}
	if err != nil {
		e.logger.Debug("Csv data logging failed", zap.Error(err), zap.String("entity", in.Entity.Name))
	}
}

// ProcessDecision emits a decision the observer computed itself, with the
// same TTL derivation and reporting path as ProcessSeries.
func (e *Engine) ProcessDecision(ctx context.Context, rc RunContext, in DecisionInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	selfmetrics.Evaluations.WithLabelValues(in.Observer, string(in.Decision.Severity)).Inc()
	ttl := eval.ReportTTL(e.now(), rc.LastRun, rc.RunDuration, rc.PollInterval, rc.RunInterval)

	return e.reporter.Report(ctx, report.Observation{
		Entity:   in.Entity,
		Observer: in.Observer,
		Metric:   in.Metric,
		Decision: in.Decision,
		TTL:      ttl,
		RunID:    rc.RunID,
	})
}
