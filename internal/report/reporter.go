// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package report turns threshold decisions into health reports, telemetry and
// trace events. It owns the per-(entity, metric) breach state machine:
// entering a breach emits once and starts an episode, staying in breach
// refreshes the report without recounting, and leaving a breach emits a
// single Ok report carrying the code that was active so the health subsystem
// clears the right entry.
package report // import "github.com/hostwatch/hostwatch/internal/report"

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/selfmetrics"
	"github.com/hostwatch/hostwatch/internal/telemetry"
	"github.com/hostwatch/hostwatch/internal/tracelog"
)

// defaultHealthTimeout bounds one synchronous health submission. Generous on
// purpose: the health channel is the product, telemetry is best effort.
const defaultHealthTimeout = 30 * time.Second

// Observation is one evaluated metric for one entity in one observer cycle.
type Observation struct {
	Entity   entity.Descriptor
	Observer string
	Metric   classify.Metric
	Decision eval.Decision

	// TTL bounds the emitted health report's lifetime.
	TTL time.Duration

	// RunID correlates everything emitted from the same observer cycle.
	RunID string

	// Aggregated marks values already rolled up into a parent entity's
	// series. Raw telemetry is skipped for them to avoid double counting.
	Aggregated bool
}

type breachKey struct {
	entityID string
	metric   classify.Metric
}

type breachRecord struct {
	code     classify.Code
	severity health.Severity
	sourceID string
	property string
	since    time.Time
}

// Reporter fans one observation out to the health sink (synchronous, the
// report must land), the telemetry sink (fire and forget) and the trace log.
// Safe for concurrent use by independent observer schedules.
type Reporter struct {
	logger *zap.Logger
	health health.Sink
	tele   telemetry.Sink
	trace  *tracelog.Sink

	osName        string
	healthTimeout time.Duration
	now           func() time.Time

	mu       sync.Mutex
	breaches map[breachKey]breachRecord
}

func NewReporter(logger *zap.Logger, healthSink health.Sink, tele telemetry.Sink, trace *tracelog.Sink) *Reporter {
	return &Reporter{
		logger:        logger,
		health:        healthSink,
		tele:          tele,
		trace:         trace,
		osName:        runtime.GOOS,
		healthTimeout: defaultHealthTimeout,
		now:           time.Now,
		breaches:      make(map[breachKey]breachRecord),
	}
}

// Report runs the state machine for one observation. Sink failures are
// logged and absorbed; the only error returned is context cancellation,
// which aborts before any state change or I/O.
func (r *Reporter) Report(ctx context.Context, obs Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := obs.Entity.Validate(); err != nil {
		r.logger.Warn("Dropping observation for invalid entity",
			zap.String("observer", obs.Observer),
			zap.String("metric", string(obs.Metric)),
			zap.Error(err))
		return nil
	}

	r.emitRaw(ctx, obs)

	key := breachKey{entityID: obs.Entity.ID(), metric: obs.Metric}
	if obs.Decision.Severity.Breach() {
		r.reportBreach(ctx, obs, key)
		return nil
	}
	if rec, wasBreached := r.endBreach(key); wasBreached {
		r.reportCleared(ctx, obs, rec)
	}
	return nil
}

// ActiveBreachCount returns the number of entity/metric pairs currently in
// breach.
func (r *Reporter) ActiveBreachCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breaches)
}

func (r *Reporter) reportBreach(ctx context.Context, obs Observation, key breachKey) {
	sev := obs.Decision.Severity
	code := obs.Decision.Code
	sourceID := SourceID(obs.Observer, code)
	property := Property(obs.Entity.Kind, obs.Metric)

	newEpisode := r.beginBreach(key, code, sev, sourceID, property)
	if newEpisode {
		selfmetrics.BreachEpisodes.WithLabelValues(string(sev)).Inc()
		selfmetrics.ActiveBreaches.Inc()
		r.logger.Info("Breach started",
			zap.String("entity_id", key.entityID),
			zap.String("metric", string(obs.Metric)),
			zap.String("severity", string(sev)),
			zap.String("code", string(code)),
			zap.Float64("value", obs.Decision.Value),
			zap.Float64("threshold", obs.Decision.Threshold))
	}

	rep := r.buildReport(obs, sev, code, sourceID, property, breachMessage(obs))
	r.submitHealth(ctx, rep)

	p := r.healthPayload(obs, rep)
	r.emitHealthTelemetry(ctx, p)
	r.trace.LogStructured(tracelog.EventTransition, p)
}

func (r *Reporter) reportCleared(ctx context.Context, obs Observation, rec breachRecord) {
	selfmetrics.ActiveBreaches.Dec()
	r.logger.Info("Breach cleared",
		zap.String("entity_id", obs.Entity.ID()),
		zap.String("metric", string(obs.Metric)),
		zap.String("code", string(rec.code)),
		zap.Duration("lasted", r.now().Sub(rec.since)))

	// The Ok report reuses the code, source and property that were active so
	// the health subsystem replaces the breach entry instead of orphaning it.
	rep := r.buildReport(obs, health.SeverityOk, rec.code, rec.sourceID, rec.property, clearedMessage(obs))
	r.submitHealth(ctx, rep)

	p := r.healthPayload(obs, rep)
	r.emitHealthTelemetry(ctx, p)
	r.trace.LogStructured(tracelog.EventCleared, p)
}

// beginBreach records the breach and reports whether it starts a new episode.
// A continuing breach keeps its start time but adopts the latest code and
// severity, so an escalation is cleared under the code that was last on the
// books.
func (r *Reporter) beginBreach(key breachKey, code classify.Code, sev health.Severity, sourceID, property string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.breaches[key]; ok {
		rec.code = code
		rec.severity = sev
		rec.sourceID = sourceID
		rec.property = property
		r.breaches[key] = rec
		return false
	}
	r.breaches[key] = breachRecord{
		code:     code,
		severity: sev,
		sourceID: sourceID,
		property: property,
		since:    r.now(),
	}
	return true
}

// endBreach removes the breach record, returning it and whether one existed.
func (r *Reporter) endBreach(key breachKey) (breachRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.breaches[key]
	if ok {
		delete(r.breaches, key)
	}
	return rec, ok
}

func (r *Reporter) emitRaw(ctx context.Context, obs Observation) {
	if obs.Aggregated {
		return
	}
	p := r.basePayload(obs)
	if err := r.tele.ReportMetric(ctx, p); err != nil {
		r.logger.Debug("Metric telemetry emission failed", zap.Error(err))
	}
	r.trace.LogStructured(tracelog.EventUsage, p)
}

func (r *Reporter) submitHealth(ctx context.Context, rep health.Report) {
	ctx, cancel := context.WithTimeout(ctx, r.healthTimeout)
	defer cancel()

	if err := r.health.Submit(ctx, rep); err != nil {
		selfmetrics.HealthReportFailures.Inc()
		r.logger.Warn("Health report submission failed",
			zap.String("entity_id", rep.EntityID),
			zap.String("source_id", rep.SourceID),
			zap.Error(err))
		return
	}
	selfmetrics.HealthReports.WithLabelValues(string(rep.Severity)).Inc()
}

func (r *Reporter) emitHealthTelemetry(ctx context.Context, p telemetry.Payload) {
	if err := r.tele.ReportHealth(ctx, p); err != nil {
		r.logger.Debug("Health telemetry emission failed", zap.Error(err))
	}
}
