package usage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostwatch/hostwatch/internal/classify"
)

func TestSeriesAverage(t *testing.T) {
	testCases := []struct {
		name     string
		capacity int
		samples  []float64
		wantAvg  float64
		wantMax  float64
		wantLen  int
	}{
		{
			name:     "unbounded keeps everything",
			capacity: 0,
			samples:  []float64{10, 20, 30},
			wantAvg:  20,
			wantMax:  30,
			wantLen:  3,
		},
		{
			name:     "empty series averages to zero",
			capacity: 0,
			samples:  nil,
			wantAvg:  0,
			wantMax:  0,
			wantLen:  0,
		},
		{
			name:     "bounded overwrites oldest",
			capacity: 3,
			samples:  []float64{1, 2, 3, 10}, // 1 evicted: retained {10, 2, 3}
			wantAvg:  5,
			wantMax:  10,
			wantLen:  3,
		},
		{
			name:     "bounded wraps twice",
			capacity: 2,
			samples:  []float64{1, 2, 3, 4, 5}, // retained {4, 5}
			wantAvg:  4.5,
			wantMax:  5,
			wantLen:  2,
		},
		{
			name:     "nan and inf discarded",
			capacity: 0,
			samples:  []float64{50, math.NaN(), math.Inf(1), math.Inf(-1), 100},
			wantAvg:  75,
			wantMax:  100,
			wantLen:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSeries("node:n1", classify.MetricCPUTimePercent, tc.capacity)
			for _, v := range tc.samples {
				s.AddSample(v)
			}
			assert.InDelta(t, tc.wantAvg, s.Average(), 0.0001)
			assert.InDelta(t, tc.wantMax, s.Max(), 0.0001)
			assert.Equal(t, tc.wantLen, s.Count())
		})
	}
}

func TestSeriesSamplesArrivalOrder(t *testing.T) {
	s := NewSeries("node:n1", classify.MetricCPUTimePercent, 3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.AddSample(v)
	}
	assert.Equal(t, []float64{3, 4, 5}, s.Samples())

	u := NewSeries("node:n1", classify.MetricCPUTimePercent, 0)
	for _, v := range []float64{9, 8, 7} {
		u.AddSample(v)
	}
	assert.Equal(t, []float64{9, 8, 7}, u.Samples())
}

func TestSeriesIsUnhealthy(t *testing.T) {
	s := NewSeries("node:n1", classify.MetricCPUTimePercent, 0)
	for _, v := range []float64{91, 92, 93} {
		s.AddSample(v)
	}

	assert.True(t, s.IsUnhealthy(90), "average 92 meets threshold 90")
	assert.True(t, s.IsUnhealthy(92), "breach is inclusive of the threshold value")
	assert.False(t, s.IsUnhealthy(92.1))
	assert.False(t, s.IsUnhealthy(0), "zero threshold means not configured")
	assert.False(t, s.IsUnhealthy(-5))

	empty := NewSeries("node:n1", classify.MetricCPUTimePercent, 0)
	assert.False(t, empty.IsUnhealthy(10))
}

func TestSeriesBreachSurvivesClear(t *testing.T) {
	s := NewSeries("application:web", classify.MetricMemoryUsageMB, 0)
	s.AddSample(2048)
	s.SetBreach(classify.CodeAppMemoryMBError)

	s.ClearSamples()

	assert.Equal(t, 0, s.Count())
	assert.Zero(t, s.Average())
	assert.True(t, s.Breached())
	assert.Equal(t, classify.CodeAppMemoryMBError, s.BreachCode())

	// The next cycle fills fresh samples while the breach state is intact.
	s.AddSample(100)
	assert.Equal(t, 1, s.Count())

	s.ClearBreach()
	assert.False(t, s.Breached())
	assert.Empty(t, s.BreachCode())
}

func TestSeriesClearResetsRingPosition(t *testing.T) {
	s := NewSeries("node:n1", classify.MetricCPUTimePercent, 2)
	s.AddSample(1)
	s.AddSample(2)
	s.AddSample(3) // ring now mid-rotation

	s.ClearSamples()
	s.AddSample(10)
	s.AddSample(20)
	assert.Equal(t, []float64{10, 20}, s.Samples())
	assert.InDelta(t, 15, s.Average(), 0.0001)
}
