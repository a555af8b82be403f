package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/internal/eval"
)

func writeTargetsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppTargets(t *testing.T) {
	targets, err := LoadAppTargets(writeTargetsFile(t, `
targets:
  - name: fabric:/billing
    process: billingd
    dump_on_error: true
    cpu:
      warning: 50
      error: 80
    memory_mb:
      warning: 500
    ephemeral_ports_percent:
      warning: 20
      error: 40
  - name: fabric:/inventory
    process: inventoryd
    threads:
      warning: 500
`))
	require.NoError(t, err)
	require.Len(t, targets, 2)

	billing := targets[0]
	assert.Equal(t, "fabric:/billing", billing.Name)
	assert.Equal(t, "billingd", billing.Process)
	assert.True(t, billing.DumpOnError)
	assert.Equal(t, eval.Thresholds{Warning: 50, Error: 80}, billing.CPU)
	assert.Equal(t, eval.Thresholds{Warning: 500}, billing.MemoryMB)
	assert.Equal(t, eval.Thresholds{Warning: 20, Error: 40}, billing.EphemeralPortsPercent)
	assert.False(t, billing.Handles.Configured())

	inventory := targets[1]
	assert.Equal(t, "inventoryd", inventory.Process)
	assert.False(t, inventory.DumpOnError)
	assert.Equal(t, eval.Thresholds{Warning: 500}, inventory.Threads)
}

func TestLoadAppTargetsEmptyPath(t *testing.T) {
	targets, err := LoadAppTargets("")
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestLoadAppTargetsMissingFile(t *testing.T) {
	_, err := LoadAppTargets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read targets file")
}

func TestLoadAppTargetsRejectsBadSpecs(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
targets:
  - process: billingd
`,
			wantErr: "name is required",
		},
		{
			name: "missing process",
			content: `
targets:
  - name: fabric:/billing
`,
			wantErr: "process is required",
		},
		{
			name: "inverted thresholds",
			content: `
targets:
  - name: fabric:/billing
    process: billingd
    cpu:
      warning: 90
      error: 70
`,
			wantErr: "cpu",
		},
		{
			name:    "malformed yaml",
			content: "targets: [oops\n",
			wantErr: "parse targets file",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadAppTargets(writeTargetsFile(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
