package observers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/observer"
)

// fakeEngine records what observers hand over. Unlike the real engine it does
// not clear series, so tests can inspect the collected samples.
type fakeEngine struct {
	seriesCalls   []observer.SeriesInput
	decisionCalls []observer.DecisionInput
	err           error
}

func (f *fakeEngine) ProcessSeries(_ context.Context, _ observer.RunContext, in observer.SeriesInput) error {
	if f.err != nil {
		return f.err
	}
	f.seriesCalls = append(f.seriesCalls, in)
	return nil
}

func (f *fakeEngine) ProcessDecision(_ context.Context, _ observer.RunContext, in observer.DecisionInput) error {
	if f.err != nil {
		return f.err
	}
	f.decisionCalls = append(f.decisionCalls, in)
	return nil
}

// seriesCall finds the recorded input for one (entity, metric) pair.
func seriesCall(t *testing.T, calls []observer.SeriesInput, entityID string, metric classify.Metric) observer.SeriesInput {
	t.Helper()
	for _, c := range calls {
		if c.Series.EntityID == entityID && c.Series.Metric == metric {
			return c
		}
	}
	require.Failf(t, "series not processed", "no call for %s %s", entityID, metric)
	return observer.SeriesInput{}
}

func hasSeriesCall(calls []observer.SeriesInput, entityID string, metric classify.Metric) bool {
	for _, c := range calls {
		if c.Series.EntityID == entityID && c.Series.Metric == metric {
			return true
		}
	}
	return false
}

func testRC() observer.RunContext {
	return observer.RunContext{RunID: "run-1"}
}
