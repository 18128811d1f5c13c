package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommand_RunsScenarios(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", harnessScenarios)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Data.Failed, "%+v", resp.Data.Scenarios)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.GreaterOrEqual(t, resp.Data.Total, 4)
}

func TestTestCommand_FilterAndUpdate(t *testing.T) {
	golden := t.TempDir()
	out, err := execute(t, "test", harnessScenarios, "--filter", "idempotent*", "--update", "--golden-dir", golden)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ idempotent_text (golden updated)")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	got, err := os.ReadFile(filepath.Join(golden, "idempotent_text.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/idempotent_text.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "idempotent_text.golden"), []byte(`{"scenario":"stale"}`), 0o644))

	out, err := execute(t, "test", harnessScenarios, "--filter", "idempotent*", "--golden-dir", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
