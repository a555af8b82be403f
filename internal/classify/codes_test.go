package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
)

func TestClassifyKnownCombinations(t *testing.T) {
	testCases := []struct {
		name   string
		metric Metric
		kind   entity.Kind
		sev    health.Severity
		want   Code
	}{
		{
			name:   "app cpu error",
			metric: MetricCPUTimePercent,
			kind:   entity.KindApplication,
			sev:    health.SeverityError,
			want:   CodeAppCPUError,
		},
		{
			name:   "service shares app scope",
			metric: MetricCPUTimePercent,
			kind:   entity.KindService,
			sev:    health.SeverityError,
			want:   CodeAppCPUError,
		},
		{
			name:   "node cpu error differs from app",
			metric: MetricCPUTimePercent,
			kind:   entity.KindNode,
			sev:    health.SeverityError,
			want:   CodeNodeCPUError,
		},
		{
			name:   "machine shares node scope",
			metric: MetricMemoryUsagePercent,
			kind:   entity.KindMachine,
			sev:    health.SeverityWarning,
			want:   CodeNodeMemoryPctWarning,
		},
		{
			name:   "disk space percent warning",
			metric: MetricDiskSpaceUsagePercent,
			kind:   entity.KindDisk,
			sev:    health.SeverityWarning,
			want:   CodeDiskSpacePctWarning,
		},
		{
			name:   "app handles percent error",
			metric: MetricHandlesPercent,
			kind:   entity.KindApplication,
			sev:    health.SeverityError,
			want:   CodeAppHandlesPctError,
		},
		{
			name:   "certificate expiry warning",
			metric: MetricCertExpiryDays,
			kind:   entity.KindNode,
			sev:    health.SeverityWarning,
			want:   CodeCertExpiryWarning,
		},
		{
			name:   "rg memory warning has a code",
			metric: MetricRGMemoryPercent,
			kind:   entity.KindService,
			sev:    health.SeverityWarning,
			want:   CodeAppRGMemoryWarning,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, ok := Classify(tc.metric, tc.kind, tc.sev)
			require.True(t, ok)
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestClassifyOkAlwaysResolves(t *testing.T) {
	code, ok := Classify(MetricCPUTimePercent, entity.KindApplication, health.SeverityOk)
	require.True(t, ok)
	assert.Equal(t, CodeOk, code)

	// Even an unknown metric resolves at Ok severity.
	code, ok = Classify(Metric("Made Up"), entity.KindNode, health.SeverityOk)
	require.True(t, ok)
	assert.Equal(t, CodeOk, code)
}

func TestClassifyUnknownCombinations(t *testing.T) {
	testCases := []struct {
		name   string
		metric Metric
		kind   entity.Kind
		sev    health.Severity
	}{
		{
			name:   "unknown metric",
			metric: Metric("GPU Usage (Percent)"),
			kind:   entity.KindApplication,
			sev:    health.SeverityError,
		},
		{
			name:   "rg memory has no error code",
			metric: MetricRGMemoryPercent,
			kind:   entity.KindApplication,
			sev:    health.SeverityError,
		},
		{
			name:   "lock table has no error code",
			metric: MetricLockTablePercent,
			kind:   entity.KindService,
			sev:    health.SeverityError,
		},
		{
			name:   "disk queue is node scoped only",
			metric: MetricDiskQueueLength,
			kind:   entity.KindApplication,
			sev:    health.SeverityError,
		},
		{
			name:   "thread count is app scoped only",
			metric: MetricThreadCount,
			kind:   entity.KindNode,
			sev:    health.SeverityWarning,
		},
		{
			name:   "invalid kind",
			metric: MetricCPUTimePercent,
			kind:   entity.Kind("cluster"),
			sev:    health.SeverityError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Classify(tc.metric, tc.kind, tc.sev)
			assert.False(t, ok)
		})
	}
}

func TestWarningOnlyMetrics(t *testing.T) {
	assert.True(t, WarningOnly(MetricRGMemoryPercent))
	assert.True(t, WarningOnly(MetricLockTablePercent))
	assert.False(t, WarningOnly(MetricCPUTimePercent))
	assert.False(t, WarningOnly(MetricMemoryUsageMB))
}

func TestFallbackCodes(t *testing.T) {
	assert.Equal(t, CodeGenericError, Fallback(health.SeverityError))
	assert.Equal(t, CodeGenericWarning, Fallback(health.SeverityWarning))
	assert.Equal(t, CodeOk, Fallback(health.SeverityOk))
}

func TestCodesAreUnique(t *testing.T) {
	seen := make(map[Code]string, len(codeTable))
	for key, code := range codeTable {
		if prev, dup := seen[code]; dup {
			t.Fatalf("code %s assigned to both %q and %q", code, prev, key.metric)
		}
		seen[code] = string(key.metric)
	}
}

func TestMetricUnits(t *testing.T) {
	assert.Equal(t, "%", MetricCPUTimePercent.Unit())
	assert.Equal(t, "MB", MetricMemoryUsageMB.Unit())
	assert.Equal(t, "days", MetricCertExpiryDays.Unit())
	assert.Equal(t, "", MetricThreadCount.Unit())
	assert.Equal(t, "", MetricActivePorts.Unit())
}
