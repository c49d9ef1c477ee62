package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCurrentVersionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.rpk")
	recordFixture(t, source, "run-1", "hello", "world")

	out := filepath.Join(dir, "migrated.rpk")
	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--source", source, "--out", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"status":"ok"`)
	assert.Contains(t, buf.String(), `"migration_status":"migrated"`)
	assert.Contains(t, buf.String(), `"target_version":"1.0"`)

	_, err := os.Stat(out)
	require.NoError(t, err)
}

func TestMigrateRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "bad.rpk")
	require.NoError(t, os.WriteFile(source, []byte("not json"), 0o600))

	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--source", source, "--out", filepath.Join(dir, "out.rpk")})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)
}

func TestMigrateRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	buf := &bytes.Buffer{}
	cmd := NewMigrateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--source", filepath.Join(dir, "missing.rpk"), "--out", filepath.Join(dir, "out.rpk")})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
}
