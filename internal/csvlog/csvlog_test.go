package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hostwatch/hostwatch/internal/classify"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	l := New(zaptest.NewLogger(t), dir)

	ts := time.Date(2026, time.August, 21, 10, 15, 0, 0, time.UTC)
	require.NoError(t, l.Append("billingd", classify.MetricCPUTimePercent, "average", 42.5, ts))
	require.NoError(t, l.Append("billingd", classify.MetricCPUTimePercent, "max", 61.25, ts))
	require.NoError(t, l.Close())

	rows := readRows(t, filepath.Join(dir, "billingd.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "entity", "metric", "stat", "value"}, rows[0])
	assert.Equal(t, []string{"2026-08-21T10:15:00Z", "billingd", "CPU Time (Percent)", "average", "42.5000"}, rows[1])
	assert.Equal(t, []string{"2026-08-21T10:15:00Z", "billingd", "CPU Time (Percent)", "max", "61.2500"}, rows[2])
}

func TestAppendSplitsFilesPerEntity(t *testing.T) {
	dir := t.TempDir()
	l := New(zaptest.NewLogger(t), dir)

	ts := time.Now()
	require.NoError(t, l.Append("billingd", classify.MetricMemoryUsageMB, "average", 512, ts))
	require.NoError(t, l.Append("checkout", classify.MetricMemoryUsageMB, "average", 760, ts))
	require.NoError(t, l.Close())

	assert.FileExists(t, filepath.Join(dir, "billingd.csv"))
	assert.FileExists(t, filepath.Join(dir, "checkout.csv"))
}

func TestReopenAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()
	ts := time.Now()

	l := New(zaptest.NewLogger(t), dir)
	require.NoError(t, l.Append("billingd", classify.MetricMemoryUsageMB, "average", 512, ts))
	require.NoError(t, l.Close())

	l = New(zaptest.NewLogger(t), dir)
	require.NoError(t, l.Append("billingd", classify.MetricMemoryUsageMB, "average", 530, ts))
	require.NoError(t, l.Close())

	rows := readRows(t, filepath.Join(dir, "billingd.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, "512.0000", rows[1][4])
	assert.Equal(t, "530.0000", rows[2][4])
}

func TestDisabledLoggerDropsEverything(t *testing.T) {
	var nilLogger *Logger
	assert.False(t, nilLogger.Enabled())
	assert.NoError(t, nilLogger.Append("billingd", classify.MetricMemoryUsageMB, "average", 1, time.Now()))
	assert.NoError(t, nilLogger.Close())

	l := New(zaptest.NewLogger(t), "")
	assert.False(t, l.Enabled())
	assert.NoError(t, l.Append("billingd", classify.MetricMemoryUsageMB, "average", 1, time.Now()))
	assert.NoError(t, l.Close())
}

func TestAppendAfterCloseFails(t *testing.T) {
	l := New(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, l.Close())
	assert.Error(t, l.Append("billingd", classify.MetricMemoryUsageMB, "average", 1, time.Now()))
}

func TestSanitizeFileName(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "billingd", want: "billingd"},
		{name: "fabric path", in: "fabric:/billing/Gateway", want: "fabric__billing_Gateway"},
		{name: "spaces and slashes", in: "disk /var/log", want: "disk__var_log"},
		{name: "keeps dots and dashes", in: "node-2.internal", want: "node-2.internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitizeFileName(tc.in))
		})
	}
}
