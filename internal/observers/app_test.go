package observers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
)

// fakeProcs plays back scripted process readings. Each Sample call advances
// through the pid's sample list; when the list runs out the last reading
// repeats, or the call fails if failWhenExhausted is set.
type fakeProcs struct {
	pids     map[string][]int32
	names    map[int32]string
	samples  map[int32][]procSample
	children map[int32][]int32

	idx               map[int32]int
	findErr           error
	failWhenExhausted bool
}

func (f *fakeProcs) Find(_ context.Context, name string) ([]int32, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.pids[name], nil
}

func (f *fakeProcs) Name(_ context.Context, pid int32) (string, error) {
	n, ok := f.names[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return n, nil
}

func (f *fakeProcs) Sample(_ context.Context, pid int32, _ portCounter) (procSample, error) {
	list := f.samples[pid]
	if len(list) == 0 {
		return procSample{}, errors.New("no such process")
	}
	if f.idx == nil {
		f.idx = make(map[int32]int)
	}
	i := f.idx[pid]
	f.idx[pid]++
	if i >= len(list) {
		if f.failWhenExhausted {
			return procSample{}, errors.New("process exited")
		}
		i = len(list) - 1
	}
	return list[i], nil
}

func (f *fakeProcs) Children(_ context.Context, pid int32) ([]int32, error) {
	return f.children[pid], nil
}

func billingTarget() AppTarget {
	return AppTarget{
		Name:        "fabric:/billing",
		Process:     "billingd",
		DumpOnError: true,
		CPU:         eval.Thresholds{Warning: 50, Error: 80},
		MemoryMB:    eval.Thresholds{Warning: 500},
	}
}

func billingProcs() *fakeProcs {
	return &fakeProcs{
		pids:     map[string][]int32{"billingd": {100}},
		names:    map[int32]string{100: "billingd", 101: "worker", 102: "indexer"},
		children: map[int32][]int32{100: {101, 102}},
		samples: map[int32][]procSample{
			100: {
				{CPUPercent: 10, WorkingSetMB: 100, PrivateMB: 150, Threads: 8, Handles: 32, Ports: 5, Ephemeral: 2},
				{CPUPercent: 20, WorkingSetMB: 110, PrivateMB: 150, Threads: 8, Handles: 32, Ports: 5, Ephemeral: 2},
			},
			101: {
				{CPUPercent: 5, WorkingSetMB: 50},
				{CPUPercent: 5, WorkingSetMB: 50},
			},
			102: {
				{CPUPercent: 2, WorkingSetMB: 30},
				{CPUPercent: 4, WorkingSetMB: 40},
			},
		},
	}
}

func newTestAppObserver(t *testing.T, cfg AppConfig, procs *fakeProcs) (*AppObserver, *fakeEngine) {
	eng := &fakeEngine{}
	o := NewAppObserver(zaptest.NewLogger(t), eng, entity.NewBuilder("node-2"), cfg)
	o.procs = procs
	o.fileHandles = func() (float64, float64, error) { return 3000, 10000, nil }
	o.portRange = func() (int, int, error) { return 49152, 65535, nil }
	o.totalMemoryMB = func(context.Context) (float64, error) { return 10240, nil }
	return o, eng
}

func appConfig(targets ...AppTarget) AppConfig {
	return AppConfig{
		Enabled:     true,
		SampleCount: 2,
		SampleDelay: time.Millisecond,
		Targets:     targets,
	}
}

func TestAppObserverSamplesTargetAndFoldsChildren(t *testing.T) {
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), billingProcs())

	require.NoError(t, o.Observe(context.Background(), testRC()))

	// Eleven parent metrics plus two tracked children.
	require.Len(t, eng.seriesCalls, 13)

	const appID = "application:fabric:/billing"

	cpu := seriesCall(t, eng.seriesCalls, appID, classify.MetricCPUTimePercent)
	assert.Equal(t, []float64{17, 29}, cpu.Series.Samples(), "children's cpu folds into the parent")
	assert.Equal(t, eval.Thresholds{Warning: 50, Error: 80}, cpu.Thresholds)
	assert.True(t, cpu.Dump)
	assert.False(t, cpu.Aggregated)
	assert.Equal(t, int32(100), cpu.Entity.ProcessID)
	assert.Equal(t, "billingd", cpu.Entity.ProcessName)

	ws := seriesCall(t, eng.seriesCalls, appID, classify.MetricMemoryUsageMB)
	assert.Equal(t, []float64{180, 200}, ws.Series.Samples())

	memPct := seriesCall(t, eng.seriesCalls, appID, classify.MetricMemoryUsagePercent)
	assert.InDelta(t, 190.0/10240*100, memPct.Series.Average(), 1e-9)

	threads := seriesCall(t, eng.seriesCalls, appID, classify.MetricThreadCount)
	assert.Equal(t, 8.0, threads.Series.Average(), "thread count stays parent-only")

	handlesPct := seriesCall(t, eng.seriesCalls, appID, classify.MetricHandlesPercent)
	assert.InDelta(t, 32.0/10000*100, handlesPct.Series.Average(), 1e-9)

	ephPct := seriesCall(t, eng.seriesCalls, appID, classify.MetricEphemeralPortsPercent)
	assert.InDelta(t, 2.0/16384*100, ephPct.Series.Average(), 1e-9)

	worker := seriesCall(t, eng.seriesCalls, "application:fabric:/billing/worker", classify.MetricMemoryUsageMB)
	assert.Equal(t, []float64{50, 50}, worker.Series.Samples())
	assert.True(t, worker.Aggregated, "child values are already inside the parent series")
	assert.False(t, worker.Dump)
	assert.Equal(t, eval.Thresholds{Warning: 500}, worker.Thresholds, "children inherit the parent memory thresholds")
	assert.Equal(t, int32(101), worker.Entity.ProcessID)

	indexer := seriesCall(t, eng.seriesCalls, "application:fabric:/billing/indexer", classify.MetricMemoryUsageMB)
	assert.Equal(t, []float64{30, 40}, indexer.Series.Samples())
}

func TestAppObserverProcessNotFound(t *testing.T) {
	procs := billingProcs()
	procs.pids = map[string][]int32{}
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), procs)

	require.NoError(t, o.Observe(context.Background(), testRC()))
	assert.Empty(t, eng.seriesCalls)
}

func TestAppObserverFindFailureIsCollected(t *testing.T) {
	procs := billingProcs()
	procs.findErr = errors.New("proc table unreadable")
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), procs)

	err := o.Observe(context.Background(), testRC())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "find billingd")
	assert.Empty(t, eng.seriesCalls)
}

func TestAppObserverWatchesFirstOfMultipleInstances(t *testing.T) {
	procs := billingProcs()
	procs.pids["billingd"] = []int32{100, 200}
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), procs)

	require.NoError(t, o.Observe(context.Background(), testRC()))

	cpu := seriesCall(t, eng.seriesCalls, "application:fabric:/billing", classify.MetricCPUTimePercent)
	assert.Equal(t, int32(100), cpu.Entity.ProcessID)
}

func TestAppObserverChildCapBoundsTracking(t *testing.T) {
	cfg := appConfig(billingTarget())
	cfg.MaxChildren = 1
	o, eng := newTestAppObserver(t, cfg, billingProcs())

	require.NoError(t, o.Observe(context.Background(), testRC()))

	assert.True(t, hasSeriesCall(eng.seriesCalls, "application:fabric:/billing/worker", classify.MetricMemoryUsageMB))
	assert.False(t, hasSeriesCall(eng.seriesCalls, "application:fabric:/billing/indexer", classify.MetricMemoryUsageMB))

	cpu := seriesCall(t, eng.seriesCalls, "application:fabric:/billing", classify.MetricCPUTimePercent)
	assert.Equal(t, []float64{17, 29}, cpu.Series.Samples(), "untracked children still fold into the parent")
}

func TestAppObserverTargetExitMidRunKeepsCollectedSamples(t *testing.T) {
	procs := billingProcs()
	procs.samples[100] = procs.samples[100][:1]
	procs.failWhenExhausted = true
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), procs)

	require.NoError(t, o.Observe(context.Background(), testRC()))

	cpu := seriesCall(t, eng.seriesCalls, "application:fabric:/billing", classify.MetricCPUTimePercent)
	assert.Equal(t, 1, cpu.Series.Count(), "the first sample still evaluates")
}

func TestAppObserverNameFallsBackToConfigured(t *testing.T) {
	procs := billingProcs()
	delete(procs.names, 100)
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), procs)

	require.NoError(t, o.Observe(context.Background(), testRC()))

	cpu := seriesCall(t, eng.seriesCalls, "application:fabric:/billing", classify.MetricCPUTimePercent)
	assert.Equal(t, "billingd", cpu.Entity.ProcessName)
}

func TestAppObserverCancelledContext(t *testing.T) {
	o, _ := newTestAppObserver(t, appConfig(billingTarget()), billingProcs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, o.Observe(ctx, testRC()), context.Canceled)
}

func TestAppObserverEnginePushbackAborts(t *testing.T) {
	o, eng := newTestAppObserver(t, appConfig(billingTarget()), billingProcs())
	eng.err = context.Canceled

	assert.ErrorIs(t, o.Observe(context.Background(), testRC()), context.Canceled)
}
