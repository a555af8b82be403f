// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package selfmetrics instruments the watchdog itself. Everything registers
// on the default Prometheus registry; Serve exposes it over HTTP when the
// agent is configured to listen.
package selfmetrics // import "github.com/hostwatch/hostwatch/internal/selfmetrics"

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	ObserverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_observer_runs_total",
		Help: "Completed observer runs by outcome.",
	}, []string{"observer", "outcome"})

	ObserverRunSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostwatch_observer_run_duration_seconds",
		Help:    "Wall-clock duration of observer runs.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"observer"})

	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_evaluations_total",
		Help: "Threshold evaluations by resulting severity.",
	}, []string{"observer", "severity"})

	BreachEpisodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_breach_episodes_total",
		Help: "Newly started breach episodes by severity.",
	}, []string{"severity"})

	ActiveBreaches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostwatch_active_breaches",
		Help: "Entity/metric pairs currently in breach.",
	})

	HealthReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_health_reports_total",
		Help: "Health reports submitted by severity.",
	}, []string{"severity"})

	HealthReportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostwatch_health_report_failures_total",
		Help: "Health report submissions that failed and were swallowed.",
	})

	DumpsTaken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostwatch_dumps_taken_total",
		Help: "Process dumps captured.",
	})

	DumpsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_dumps_suppressed_total",
		Help: "Process dumps skipped, by gating reason.",
	}, []string{"reason"})

	TelemetryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostwatch_telemetry_dropped_total",
		Help: "Telemetry payloads dropped because the queue was full.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Self-metrics listener started", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
