package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportTTLFirstRun(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name         string
		runDuration  time.Duration
		pollInterval time.Duration
		runInterval  time.Duration
		want         time.Duration
	}{
		{
			name:         "poll interval plus margin",
			pollInterval: 30 * time.Second,
			want:         5*time.Minute + 30*time.Second,
		},
		{
			name:         "explicit run interval extends the lifetime",
			pollInterval: 30 * time.Second,
			runInterval:  time.Hour,
			want:         time.Hour + 5*time.Minute + 30*time.Second,
		},
		{
			name: "all zero still yields the margin",
			want: 5 * time.Minute,
		},
		{
			name:         "negative inputs are defaulted",
			runDuration:  -time.Second,
			pollInterval: -time.Minute,
			runInterval:  -time.Hour,
			want:         5 * time.Minute,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ReportTTL(now, time.Time{}, tc.runDuration, tc.pollInterval, tc.runInterval)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReportTTLSubsequentRuns(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name         string
		lastRunAgo   time.Duration
		runDuration  time.Duration
		pollInterval time.Duration
		want         time.Duration
	}{
		{
			name:         "gap plus run duration plus poll",
			lastRunAgo:   45 * time.Second,
			runDuration:  10 * time.Second,
			pollInterval: 30 * time.Second,
			want:         85 * time.Second,
		},
		{
			name:         "clock skew clamps the gap to zero",
			lastRunAgo:   -time.Minute, // lastRun in the future
			runDuration:  10 * time.Second,
			pollInterval: 30 * time.Second,
			want:         40 * time.Second,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ReportTTL(now, now.Add(-tc.lastRunAgo), tc.runDuration, tc.pollInterval, 0)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReportTTLNeverBelowRefreshNeed(t *testing.T) {
	now := time.Now()

	// A report produced by a 10s run on a 30s cadence must outlive the gap
	// to the next refresh: at least run duration + poll interval.
	got := ReportTTL(now, now, 10*time.Second, 30*time.Second, 0)
	assert.GreaterOrEqual(t, got, 40*time.Second)

	// First run with a 30s poll interval keeps the settling margin.
	first := ReportTTL(now, time.Time{}, 0, 30*time.Second, 0)
	assert.GreaterOrEqual(t, first, 5*time.Minute+30*time.Second)
}
