// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/usage"
)

const (
	appObserverName = "AppObserver"

	defaultAppSampleCount = 3
	defaultAppSampleDelay = 500 * time.Millisecond
	defaultMaxChildren    = 10
)

// AppTarget is one monitored workload: the process to find and the thresholds
// to hold it to. Descendant processes are folded into the parent's CPU and
// memory readings so a worker-spawning service cannot hide behind its
// children.
type AppTarget struct {
	Name        string
	Process     string
	DumpOnError bool

	CPU                   eval.Thresholds
	MemoryMB              eval.Thresholds
	MemoryPercent         eval.Thresholds
	PrivateBytesMB        eval.Thresholds
	Threads               eval.Thresholds
	Handles               eval.Thresholds
	HandlesPercent        eval.Thresholds
	Ports                 eval.Thresholds
	PortsPercent          eval.Thresholds
	EphemeralPorts        eval.Thresholds
	EphemeralPortsPercent eval.Thresholds
}

// AppConfig carries the monitored targets and the sampling cadence shared by
// all of them.
type AppConfig struct {
	Enabled     bool
	SampleCount int
	SampleDelay time.Duration
	MaxChildren int
	Targets     []AppTarget
}

// AppObserver samples each target process a few times per run, sums direct
// children into the parent reading, and tracks the biggest children as their
// own aggregated series.
type AppObserver struct {
	logger *zap.Logger
	eng    Engine
	build  *entity.Builder
	cfg    AppConfig
	series *seriesTable

	procs         procReader
	fileHandles   func() (used, max float64, err error)
	portRange     func() (lo, hi int, err error)
	totalMemoryMB func(ctx context.Context) (float64, error)
}

func NewAppObserver(logger *zap.Logger, eng Engine, build *entity.Builder, cfg AppConfig) *AppObserver {
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = defaultAppSampleCount
	}
	if cfg.SampleDelay <= 0 {
		cfg.SampleDelay = defaultAppSampleDelay
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = defaultMaxChildren
	}
	return &AppObserver{
		logger:      logger,
		eng:         eng,
		build:       build,
		cfg:         cfg,
		series:      newSeriesTable(),
		procs:       newProcReader(),
		fileHandles: fileHandleUsage,
		portRange:   ephemeralPortRange,
		totalMemoryMB: func(ctx context.Context) (float64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return bytesToMB(vm.Total), nil
		},
	}
}

func (o *AppObserver) Name() string  { return appObserverName }
func (o *AppObserver) Enabled() bool { return o.cfg.Enabled }

func (o *AppObserver) Observe(ctx context.Context, rc observer.RunContext) error {
	lo, hi, err := o.portRange()
	if err != nil || lo <= 0 || hi < lo {
		lo, hi = defaultEphemeralLow, defaultEphemeralHigh
	}
	ports := pidPortCounter(lo, hi)
	rangeSize := float64(hi - lo + 1)

	_, handleMax, err := o.fileHandles()
	if err != nil {
		handleMax = 0
	}
	totalMB, err := o.totalMemoryMB(ctx)
	if err != nil {
		totalMB = 0
	}

	var errs error
	for _, target := range o.cfg.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.observeTarget(ctx, rc, target, ports, rangeSize, handleMax, totalMB, &errs); err != nil {
			return err
		}
	}
	return errs
}

// trackedChild is one descendant followed as its own entity during a run.
type trackedChild struct {
	ent    entity.Descriptor
	series *usage.Series
}

func (o *AppObserver) observeTarget(ctx context.Context, rc observer.RunContext, target AppTarget, ports portCounter, rangeSize, handleMax, totalMB float64, errs *error) error {
	pids, err := o.procs.Find(ctx, target.Process)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("find %s: %w", target.Process, err))
		return nil
	}
	if len(pids) == 0 {
		o.logger.Debug("Monitored process not found",
			zap.String("target", target.Name),
			zap.String("process", target.Process))
		return nil
	}
	pid := pids[0]
	if len(pids) > 1 {
		o.logger.Debug("Multiple instances of monitored process, watching the first",
			zap.String("process", target.Process),
			zap.Int("instances", len(pids)),
			zap.Int32("pid", pid))
	}

	procName, err := o.procs.Name(ctx, pid)
	if err != nil || procName == "" {
		procName = target.Process
	}
	app := o.build.Application(target.Name, pid, procName)
	children := make(map[string]*trackedChild)

	for i := 0; i < o.cfg.SampleCount; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, o.cfg.SampleDelay); err != nil {
				return err
			}
		}

		reading, err := o.procs.Sample(ctx, pid, ports)
		if err != nil {
			// Target may have exited mid-run; what was sampled still counts.
			o.logger.Debug("Process sample failed",
				zap.String("process", procName),
				zap.Int32("pid", pid),
				zap.Error(err))
			break
		}
		o.foldChildren(ctx, pid, target, &reading, children)

		o.addSample(app, classify.MetricCPUTimePercent, reading.CPUPercent)
		o.addSample(app, classify.MetricMemoryUsageMB, reading.WorkingSetMB)
		o.addSample(app, classify.MetricPrivateBytesMB, reading.PrivateMB)
		if totalMB > 0 {
			o.addSample(app, classify.MetricMemoryUsagePercent, reading.WorkingSetMB/totalMB*100)
		}
		o.addSample(app, classify.MetricThreadCount, reading.Threads)
		o.addSample(app, classify.MetricHandles, reading.Handles)
		if handleMax > 0 {
			o.addSample(app, classify.MetricHandlesPercent, reading.Handles/handleMax*100)
		}
		o.addSample(app, classify.MetricActivePorts, reading.Ports)
		o.addSample(app, classify.MetricActivePortsPercent, reading.Ports/maxPortNumber*100)
		o.addSample(app, classify.MetricEphemeralPorts, reading.Ephemeral)
		o.addSample(app, classify.MetricEphemeralPortsPercent, reading.Ephemeral/rangeSize*100)
	}

	for _, mt := range []struct {
		metric     classify.Metric
		thresholds eval.Thresholds
	}{
		{classify.MetricCPUTimePercent, target.CPU},
		{classify.MetricMemoryUsageMB, target.MemoryMB},
		{classify.MetricMemoryUsagePercent, target.MemoryPercent},
		{classify.MetricPrivateBytesMB, target.PrivateBytesMB},
		{classify.MetricThreadCount, target.Threads},
		{classify.MetricHandles, target.Handles},
		{classify.MetricHandlesPercent, target.HandlesPercent},
		{classify.MetricActivePorts, target.Ports},
		{classify.MetricActivePortsPercent, target.PortsPercent},
		{classify.MetricEphemeralPorts, target.EphemeralPorts},
		{classify.MetricEphemeralPortsPercent, target.EphemeralPortsPercent},
	} {
		in := observer.SeriesInput{
			Series:     o.series.get(app.ID(), mt.metric),
			Entity:     app,
			Thresholds: mt.thresholds,
			Observer:   o.Name(),
			Dump:       target.DumpOnError,
		}
		if err := o.eng.ProcessSeries(ctx, rc, in); err != nil {
			return err
		}
	}

	// Children evaluate against the parent's memory thresholds and are marked
	// aggregated: their values are already inside the parent's series, so they
	// produce health state but no duplicate raw telemetry.
	for _, child := range children {
		in := observer.SeriesInput{
			Series:     child.series,
			Entity:     child.ent,
			Thresholds: target.MemoryMB,
			Observer:   o.Name(),
			Aggregated: true,
		}
		if err := o.eng.ProcessSeries(ctx, rc, in); err != nil {
			return err
		}
	}
	return nil
}

// foldChildren adds the direct children's CPU and memory onto the parent
// reading and records per-child memory samples, up to the configured cap of
// distinct child names.
func (o *AppObserver) foldChildren(ctx context.Context, pid int32, target AppTarget, reading *procSample, children map[string]*trackedChild) {
	kidPids, err := o.procs.Children(ctx, pid)
	if err != nil || len(kidPids) == 0 {
		return
	}

	for _, kid := range kidPids {
		ks, err := o.procs.Sample(ctx, kid, nil)
		if err != nil {
			continue
		}
		reading.CPUPercent += ks.CPUPercent
		reading.WorkingSetMB += ks.WorkingSetMB
		reading.PrivateMB += ks.PrivateMB

		name, err := o.procs.Name(ctx, kid)
		if err != nil || name == "" {
			continue
		}
		tc, ok := children[name]
		if !ok {
			if len(children) >= o.cfg.MaxChildren {
				continue
			}
			ent := o.build.Application(target.Name+"/"+name, kid, name)
			tc = &trackedChild{
				ent:    ent,
				series: o.series.get(ent.ID(), classify.MetricMemoryUsageMB),
			}
			children[name] = tc
		}
		tc.series.AddSample(ks.WorkingSetMB)
	}
}

func (o *AppObserver) addSample(d entity.Descriptor, m classify.Metric, v float64) {
	o.series.get(d.ID(), m).AddSample(v)
}
