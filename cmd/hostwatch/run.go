// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/hostwatch/hostwatch/internal/config"
	"github.com/hostwatch/hostwatch/internal/csvlog"
	"github.com/hostwatch/hostwatch/internal/dump"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/observers"
	"github.com/hostwatch/hostwatch/internal/report"
	"github.com/hostwatch/hostwatch/internal/selfmetrics"
	"github.com/hostwatch/hostwatch/internal/telemetry"
	"github.com/hostwatch/hostwatch/internal/tracelog"
)

// storeSweepInterval paces the removal of expired reports from the local
// store. Expiry itself comes from each report's TTL.
const storeSweepInterval = time.Minute

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watchdog until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger, err := buildLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runAgent(ctx, logger, cfg)
	},
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Encoding
	return zapCfg.Build()
}

// agent owns every long-lived component of a running watchdog and tears them
// down in reverse dependency order.
type agent struct {
	logger  *zap.Logger
	store   *health.MemoryStore
	sink    *health.ResilientSink
	tele    telemetry.Sink
	csv     *csvlog.Logger
	manager *observer.Manager
}

func buildAgent(logger *zap.Logger, cfg *config.Config) (*agent, error) {
	store := health.NewMemoryStore(logger)
	sink, err := health.NewResilientSink(logger, func() (health.Sink, error) {
		return health.NewMultiSink(store, health.NewLogSink(logger)), nil
	})
	if err != nil {
		return nil, err
	}

	var tele telemetry.Sink = telemetry.NewNopSink()
	if cfg.Telemetry.Enabled {
		otel := telemetry.NewOTelSink(telemetry.NewLoggingConsumer(logger), version)
		tele = telemetry.NewAsyncSink(logger, otel, cfg.Telemetry.QueueSize)
	}

	trace := tracelog.New(logger, cfg.Logging.EnableTracing)
	reporter := report.NewReporter(logger, sink, tele, trace)

	coordinator := dump.New(logger, cfg.DumpConfig(), dump.NewWriter())
	csv := csvlog.New(logger, cfg.CSVDataDir)

	eng := observer.NewEngine(logger, reporter, coordinator, csv)
	manager := observer.NewManager(logger, cfg.Jitter, cfg.RunTimeout)
	if err := registerObservers(manager, logger, eng, cfg); err != nil {
		return nil, err
	}

	return &agent{
		logger:  logger,
		store:   store,
		sink:    sink,
		tele:    tele,
		csv:     csv,
		manager: manager,
	}, nil
}

func registerObservers(m *observer.Manager, logger *zap.Logger, eng *observer.Engine, cfg *config.Config) error {
	targets, err := config.LoadAppTargets(cfg.Apps.TargetsFile)
	if err != nil {
		return err
	}
	if cfg.Apps.Enabled && len(targets) == 0 {
		logger.Info("No app targets configured, process watching is idle")
	}

	interval := func(override time.Duration) time.Duration {
		if override > 0 {
			return override
		}
		return cfg.PollInterval
	}
	build := entity.NewBuilder(cfg.NodeName)

	m.Register(observers.NewNodeObserver(logger, eng, build, cfg.Node.Observer()),
		interval(cfg.Node.RunInterval), cfg.Node.RunInterval)
	m.Register(observers.NewDiskObserver(logger, eng, build, cfg.Disk.Observer()),
		interval(cfg.Disk.RunInterval), cfg.Disk.RunInterval)
	m.Register(observers.NewAppObserver(logger, eng, build, cfg.Apps.Observer(targets)),
		interval(cfg.Apps.RunInterval), cfg.Apps.RunInterval)
	m.Register(observers.NewCertificateObserver(logger, eng, build, cfg.Certificates.Observer()),
		interval(cfg.Certificates.RunInterval), cfg.Certificates.RunInterval)
	return nil
}

func runAgent(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	ag, err := buildAgent(logger, cfg)
	if err != nil {
		return err
	}

	logger.Info("Watchdog starting",
		zap.String("node", cfg.NodeName),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Strings("observers", ag.manager.Observers()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ag.manager.Run(gctx) })
	g.Go(func() error { return ag.sweepStore(gctx) })
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return selfmetrics.Serve(gctx, cfg.Metrics.Addr, logger) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("Watchdog stopping")
	return multierr.Append(err, ag.Close())
}

// sweepStore drops expired reports so entities whose producer went quiet do
// not stay visible forever.
func (a *agent) sweepStore(ctx context.Context) error {
	ticker := time.NewTicker(storeSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := a.store.Sweep(); n > 0 {
				a.logger.Debug("Expired health reports swept", zap.Int("count", n))
			}
		}
	}
}

// Close flushes and releases everything the agent opened. Data files first,
// then the telemetry queue, then the health sinks the queue may still feed.
func (a *agent) Close() error {
	var errs error
	errs = multierr.Append(errs, a.csv.Close())
	errs = multierr.Append(errs, a.tele.Close())
	errs = multierr.Append(errs, a.sink.Close())
	return errs
}
