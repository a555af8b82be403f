// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/usage"
)

const (
	nodeObserverName = "NodeObserver"

	defaultNodeSampleCount = 3
	cpuSampleWindow        = time.Second
)

// NodeConfig carries the machine-wide thresholds. Unset thresholds disable
// both sampling and evaluation of that metric.
type NodeConfig struct {
	Enabled     bool
	SampleCount int

	CPU                   eval.Thresholds
	MemoryPercent         eval.Thresholds
	MemoryMB              eval.Thresholds
	ActivePorts           eval.Thresholds
	ActivePortsPercent    eval.Thresholds
	EphemeralPorts        eval.Thresholds
	EphemeralPortsPercent eval.Thresholds
	Handles               eval.Thresholds
	HandlesPercent        eval.Thresholds
	FirewallRules         eval.Thresholds
}

// NodeObserver watches the host: CPU, memory, TCP port pressure and kernel
// file handles. Collection functions are fields so tests can substitute
// readings.
type NodeObserver struct {
	logger *zap.Logger
	eng    Engine
	build  *entity.Builder
	cfg    NodeConfig
	series *seriesTable

	cpuPercent    func(ctx context.Context) (float64, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	connections   func(ctx context.Context) ([]gnet.ConnectionStat, error)
	fileHandles   func() (used, max float64, err error)
	portRange     func() (lo, hi int, err error)

	// firewallRules is optional: no portable source exists, so it stays nil
	// unless the host wires a platform-specific provider.
	firewallRules func(ctx context.Context) (int, error)
}

func NewNodeObserver(logger *zap.Logger, eng Engine, build *entity.Builder, cfg NodeConfig) *NodeObserver {
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = defaultNodeSampleCount
	}
	return &NodeObserver{
		logger: logger,
		eng:    eng,
		build:  build,
		cfg:    cfg,
		series: newSeriesTable(),
		cpuPercent: func(ctx context.Context) (float64, error) {
			vals, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
			if err != nil {
				return 0, err
			}
			if len(vals) == 0 {
				return 0, errors.New("no cpu reading")
			}
			return vals[0], nil
		},
		virtualMemory: mem.VirtualMemoryWithContext,
		connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "tcp")
		},
		fileHandles: fileHandleUsage,
		portRange:   ephemeralPortRange,
	}
}

func (o *NodeObserver) Name() string  { return nodeObserverName }
func (o *NodeObserver) Enabled() bool { return o.cfg.Enabled }

// Observe samples every configured metric once per run (CPU in a short burst)
// and pushes the series through the engine. Collection failures are gathered
// and returned together; only context cancellation aborts mid-run.
func (o *NodeObserver) Observe(ctx context.Context, rc observer.RunContext) error {
	node := o.build.Node()
	var errs error

	if o.cfg.CPU.Configured() {
		if err := o.observeCPU(ctx, rc, node, &errs); err != nil {
			return err
		}
	}
	if o.cfg.MemoryPercent.Configured() || o.cfg.MemoryMB.Configured() {
		if err := o.observeMemory(ctx, rc, node, &errs); err != nil {
			return err
		}
	}
	if o.portsConfigured() {
		if err := o.observePorts(ctx, rc, node, &errs); err != nil {
			return err
		}
	}
	if o.cfg.Handles.Configured() || o.cfg.HandlesPercent.Configured() {
		if err := o.observeHandles(ctx, rc, node, &errs); err != nil {
			return err
		}
	}
	if o.cfg.FirewallRules.Configured() && o.firewallRules != nil {
		if err := o.observeFirewall(ctx, rc, node, &errs); err != nil {
			return err
		}
	}
	return errs
}

func (o *NodeObserver) observeCPU(ctx context.Context, rc observer.RunContext, node entity.Descriptor, errs *error) error {
	s := o.series.get(node.ID(), classify.MetricCPUTimePercent)
	for i := 0; i < o.cfg.SampleCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		pct, err := o.cpuPercent(ctx)
		if err != nil {
			*errs = multierr.Append(*errs, fmt.Errorf("cpu percent: %w", err))
			break
		}
		s.AddSample(pct)
	}
	return o.process(ctx, rc, node, s, o.cfg.CPU)
}

func (o *NodeObserver) observeMemory(ctx context.Context, rc observer.RunContext, node entity.Descriptor, errs *error) error {
	vm, err := o.virtualMemory(ctx)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("virtual memory: %w", err))
		return nil
	}

	sPct := o.series.get(node.ID(), classify.MetricMemoryUsagePercent)
	sPct.AddSample(vm.UsedPercent)
	if err := o.process(ctx, rc, node, sPct, o.cfg.MemoryPercent); err != nil {
		return err
	}

	sMB := o.series.get(node.ID(), classify.MetricMemoryUsageMB)
	sMB.AddSample(bytesToMB(vm.Used))
	return o.process(ctx, rc, node, sMB, o.cfg.MemoryMB)
}

func (o *NodeObserver) observePorts(ctx context.Context, rc observer.RunContext, node entity.Descriptor, errs *error) error {
	conns, err := o.connections(ctx)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("tcp connections: %w", err))
		return nil
	}

	lo, hi, err := o.portRange()
	if err != nil || lo <= 0 || hi < lo {
		lo, hi = defaultEphemeralLow, defaultEphemeralHigh
	}
	total, eph := countLocalPorts(conns, lo, hi)
	rangeSize := float64(hi - lo + 1)

	for _, mv := range []struct {
		metric     classify.Metric
		value      float64
		thresholds eval.Thresholds
	}{
		{classify.MetricActivePorts, total, o.cfg.ActivePorts},
		{classify.MetricActivePortsPercent, total / maxPortNumber * 100, o.cfg.ActivePortsPercent},
		{classify.MetricEphemeralPorts, eph, o.cfg.EphemeralPorts},
		{classify.MetricEphemeralPortsPercent, eph / rangeSize * 100, o.cfg.EphemeralPortsPercent},
	} {
		s := o.series.get(node.ID(), mv.metric)
		s.AddSample(mv.value)
		if err := o.process(ctx, rc, node, s, mv.thresholds); err != nil {
			return err
		}
	}
	return nil
}

func (o *NodeObserver) observeHandles(ctx context.Context, rc observer.RunContext, node entity.Descriptor, errs *error) error {
	used, limit, err := o.fileHandles()
	switch {
	case errors.Is(err, errUnsupportedStat):
		o.logger.Debug("File handle counters unavailable on this platform")
		return nil
	case err != nil:
		*errs = multierr.Append(*errs, fmt.Errorf("file handles: %w", err))
		return nil
	}

	s := o.series.get(node.ID(), classify.MetricHandles)
	s.AddSample(used)
	if err := o.process(ctx, rc, node, s, o.cfg.Handles); err != nil {
		return err
	}

	if limit > 0 {
		sPct := o.series.get(node.ID(), classify.MetricHandlesPercent)
		sPct.AddSample(used / limit * 100)
		if err := o.process(ctx, rc, node, sPct, o.cfg.HandlesPercent); err != nil {
			return err
		}
	}
	return nil
}

func (o *NodeObserver) observeFirewall(ctx context.Context, rc observer.RunContext, node entity.Descriptor, errs *error) error {
	n, err := o.firewallRules(ctx)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("firewall rules: %w", err))
		return nil
	}
	s := o.series.get(node.ID(), classify.MetricFirewallRules)
	s.AddSample(float64(n))
	return o.process(ctx, rc, node, s, o.cfg.FirewallRules)
}

func (o *NodeObserver) portsConfigured() bool {
	return o.cfg.ActivePorts.Configured() || o.cfg.ActivePortsPercent.Configured() ||
		o.cfg.EphemeralPorts.Configured() || o.cfg.EphemeralPortsPercent.Configured()
}

func (o *NodeObserver) process(ctx context.Context, rc observer.RunContext, d entity.Descriptor, s *usage.Series, t eval.Thresholds) error {
	return o.eng.ProcessSeries(ctx, rc, observer.SeriesInput{
		Series:     s,
		Entity:     d,
		Thresholds: t,
		Observer:   o.Name(),
	})
}
