package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/csvlog"
	"github.com/hostwatch/hostwatch/internal/dump"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/report"
	"github.com/hostwatch/hostwatch/internal/telemetry"
	"github.com/hostwatch/hostwatch/internal/tracelog"
	"github.com/hostwatch/hostwatch/internal/usage"
)

type fakeDumper struct {
	targets []dump.Target
}

func (d *fakeDumper) TryCapture(_ context.Context, t dump.Target) bool {
	d.targets = append(d.targets, t)
	return true
}

func newTestEngine(t *testing.T) (*Engine, *health.MemoryStore, *report.Reporter, *fakeDumper) {
	store := health.NewMemoryStore(zaptest.NewLogger(t))
	rep := report.NewReporter(zaptest.NewLogger(t), store, telemetry.NewNopSink(), tracelog.New(zap.NewNop(), false))
	dumper := &fakeDumper{}
	eng := NewEngine(zaptest.NewLogger(t), rep, dumper, nil)
	return eng, store, rep, dumper
}

func billingEntity() entity.Descriptor {
	return entity.Descriptor{
		Kind:        entity.KindApplication,
		Name:        "fabric:/billing",
		NodeName:    "node-2",
		ProcessID:   4410,
		ProcessName: "billingd",
	}
}

func cpuSeries(samples ...float64) *usage.Series {
	s := usage.NewSeries("application:fabric:/billing", classify.MetricCPUTimePercent, 0)
	for _, v := range samples {
		s.AddSample(v)
	}
	return s
}

func TestProcessSeriesFullBreachCycle(t *testing.T) {
	eng, store, rep, dumper := newTestEngine(t)
	ctx := context.Background()

	series := cpuSeries(91, 92, 93)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Warning: 80, Error: 90},
		Observer:   "AppObserver",
		Dump:       true,
	}

	// First cycle: average 92 crosses the error threshold.
	require.NoError(t, eng.ProcessSeries(ctx, RunContext{RunID: "r1", PollInterval: 30 * time.Second}, in))

	got, ok := store.Get("application:fabric:/billing", "AppObserver(HW010)", "application:CPU Time (Percent)")
	require.True(t, ok)
	assert.Equal(t, health.SeverityError, got.Severity)
	assert.Equal(t, "HW010", got.Code)
	assert.Equal(t, 5*time.Minute+30*time.Second, got.TTL, "first run TTL is poll interval plus the fixed margin")

	assert.Zero(t, series.Count(), "samples are cleared after the cycle")
	assert.True(t, series.Breached(), "breach mark survives the sample reset")
	assert.Equal(t, classify.CodeAppCPUError, series.BreachCode())

	require.Len(t, dumper.targets, 1)
	assert.Equal(t, int32(4410), dumper.targets[0].ProcessID)
	assert.Equal(t, "billingd", dumper.targets[0].ProcessName)
	assert.Equal(t, health.SeverityError, dumper.targets[0].Severity)

	// Second cycle: load has dropped, the breach resolves.
	fixedNow := time.Now()
	eng.now = func() time.Time { return fixedNow }
	series.AddSample(70)
	rc2 := RunContext{
		RunID:        "r2",
		LastRun:      fixedNow.Add(-45 * time.Second),
		RunDuration:  10 * time.Second,
		PollInterval: 30 * time.Second,
	}
	require.NoError(t, eng.ProcessSeries(ctx, rc2, in))

	got, ok = store.Get("application:fabric:/billing", "AppObserver(HW010)", "application:CPU Time (Percent)")
	require.True(t, ok, "the Ok report replaces the error entry under the same key")
	assert.Equal(t, health.SeverityOk, got.Severity)
	assert.Equal(t, "HW010", got.Code, "clear carries the code that was active")
	assert.Equal(t, 85*time.Second, got.TTL, "subsequent TTL covers gap plus run duration plus poll")

	assert.False(t, series.Breached())
	assert.Zero(t, rep.ActiveBreachCount())
	assert.Len(t, dumper.targets, 1, "a resolving cycle never captures")
}

func TestProcessSeriesUnconfiguredThresholdsSkipsEvaluation(t *testing.T) {
	eng, store, _, dumper := newTestEngine(t)

	series := cpuSeries(99, 99)
	in := SeriesInput{
		Series:   series,
		Entity:   billingEntity(),
		Observer: "AppObserver",
		Dump:     true,
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))

	assert.Zero(t, store.Len())
	assert.Empty(t, dumper.targets)
	assert.Zero(t, series.Count(), "samples still reset so the series does not grow unbounded")
}

func TestProcessSeriesEmptySeriesIsNoop(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)

	series := cpuSeries()
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Warning: 80},
		Observer:   "AppObserver",
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))

	assert.Zero(t, store.Len())
}

func TestProcessSeriesHealthyValueNeverDumps(t *testing.T) {
	eng, store, _, dumper := newTestEngine(t)

	series := cpuSeries(40)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Warning: 80, Error: 90},
		Observer:   "AppObserver",
		Dump:       true,
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))

	assert.Empty(t, dumper.targets)
	assert.Zero(t, store.Len(), "healthy with no prior breach emits no health report")
}

func TestProcessSeriesWarningPassesThroughToDumper(t *testing.T) {
	eng, _, _, dumper := newTestEngine(t)

	series := cpuSeries(85)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Warning: 80, Error: 90},
		Observer:   "AppObserver",
		Dump:       true,
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))

	// Severity policy (error-only by default) is the coordinator's call, so
	// the engine forwards warnings too.
	require.Len(t, dumper.targets, 1)
	assert.Equal(t, health.SeverityWarning, dumper.targets[0].Severity)
}

func TestProcessSeriesWithoutDumpFlagNeverCaptures(t *testing.T) {
	eng, _, _, dumper := newTestEngine(t)

	series := cpuSeries(99)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Error: 90},
		Observer:   "AppObserver",
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))

	assert.Empty(t, dumper.targets)
}

func TestProcessSeriesCancelledContextKeepsSamples(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	series := cpuSeries(91, 92, 93)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Error: 90},
		Observer:   "AppObserver",
	}
	err := eng.ProcessSeries(ctx, RunContext{RunID: "r1"}, in)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, series.Count(), "cancellation aborts before any state change")
	assert.Zero(t, store.Len())
}

func TestProcessSeriesAppendsCsvDataRows(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	dir := t.TempDir()
	eng.csv = csvlog.New(zaptest.NewLogger(t), dir)

	series := cpuSeries(40, 60)
	in := SeriesInput{
		Series:     series,
		Entity:     billingEntity(),
		Thresholds: eval.Thresholds{Warning: 80, Error: 90},
		Observer:   "AppObserver",
	}
	require.NoError(t, eng.ProcessSeries(context.Background(), RunContext{RunID: "r1"}, in))
	require.NoError(t, eng.csv.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "fabric__billing.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3, "header plus average and max rows")
	assert.Contains(t, lines[1], "average,50.0000")
	assert.Contains(t, lines[2], "max,60.0000")
}

func TestProcessDecisionReportsDirectly(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)

	node := entity.Descriptor{Kind: entity.KindNode, Name: "node-2", NodeName: "node-2"}
	dec := eval.Decision{
		Severity:  health.SeverityWarning,
		Threshold: 30,
		Value:     12,
		Code:      eval.ResolveCode(classify.MetricCertExpiryDays, node.Kind, health.SeverityWarning),
	}
	in := DecisionInput{
		Entity:   node,
		Metric:   classify.MetricCertExpiryDays,
		Decision: dec,
		Observer: "CertObserver",
	}
	require.NoError(t, eng.ProcessDecision(context.Background(), RunContext{RunID: "r1", PollInterval: time.Minute}, in))

	got, ok := store.Get("node:node-2", "CertObserver(HW079)", "node:Certificate Expiration (Days)")
	require.True(t, ok)
	assert.Equal(t, health.SeverityWarning, got.Severity)
	assert.Equal(t, 12.0, got.Value)
	assert.Equal(t, 6*time.Minute, got.TTL)
}
