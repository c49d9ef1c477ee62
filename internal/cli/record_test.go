package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "run.rpk")

	stdout := recordFixture(t, out, "fixed-run-id", "summarize this", "ok")

	assert.Contains(t, stdout, `"status":"ok"`)
	assert.Contains(t, stdout, `"run_id":"fixed-run-id"`)
	_, err := os.Stat(out)
	require.NoError(t, err)
}

func TestRecordRequiresOut(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRecordCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRecordGeneratesRunIDWhenUnset(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "run.rpk")

	stdout := recordFixture(t, out, "", "prompt", "response")
	assert.Contains(t, stdout, `"run_id":`)
	assert.NotContains(t, stdout, `"run_id":""`)
}

func TestRecordFailsOnBadConfigPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "run.rpk")

	buf := &bytes.Buffer{}
	cmd := NewRecordCommand(&RootOptions{Format: "json", ConfigPath: filepath.Join(dir, "missing.json")})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--out", out})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
	assert.Contains(t, buf.String(), `"status":"error"`)
}
