package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAssertWritesBaselineWhenMissing(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "candidate.rpk")
	recordFixture(t, candidate, "run-1", "hello", "world")
	snapshotsDir := t.TempDir()

	buf := &bytes.Buffer{}
	cmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--name", "onboarding", "--candidate", candidate, "--snapshots-dir", snapshotsDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"baseline_written"`)
}

func TestSnapshotAssertPassesAgainstStoredBaseline(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "candidate.rpk")
	recordFixture(t, candidate, "run-1", "hello", "world")
	snapshotsDir := t.TempDir()

	writeBuf := &bytes.Buffer{}
	writeCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	writeCmd.SetOut(writeBuf)
	writeCmd.SetErr(writeBuf)
	writeCmd.SetArgs([]string{"--name", "onboarding", "--candidate", candidate, "--snapshots-dir", snapshotsDir})
	require.NoError(t, writeCmd.Execute())

	checkBuf := &bytes.Buffer{}
	checkCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	checkCmd.SetOut(checkBuf)
	checkCmd.SetErr(checkBuf)
	checkCmd.SetArgs([]string{"--name", "onboarding", "--candidate", candidate, "--snapshots-dir", snapshotsDir})
	require.NoError(t, checkCmd.Execute())
	assert.Contains(t, checkBuf.String(), `"status":"pass"`)
}

func TestSnapshotAssertFailsAgainstDivergedBaselineWithoutDoubleReport(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original.rpk")
	recordFixture(t, original, "run-1", "hello", "world")
	snapshotsDir := t.TempDir()

	writeBuf := &bytes.Buffer{}
	writeCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	writeCmd.SetOut(writeBuf)
	writeCmd.SetErr(writeBuf)
	writeCmd.SetArgs([]string{"--name", "onboarding", "--candidate", original, "--snapshots-dir", snapshotsDir})
	require.NoError(t, writeCmd.Execute())

	changed := filepath.Join(dir, "changed.rpk")
	recordFixture(t, changed, "run-1", "hello", "a very different answer")

	buf := &bytes.Buffer{}
	cmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--name", "onboarding", "--candidate", changed, "--snapshots-dir", snapshotsDir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.True(t, exitErr.Reported)

	out := buf.String()
	assert.Contains(t, out, `"status":"fail"`)
	assert.NotContains(t, out, `"status":"error"`)
}

func TestSnapshotAssertUpdateOverwritesBaseline(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original.rpk")
	recordFixture(t, original, "run-1", "hello", "world")
	snapshotsDir := t.TempDir()

	writeBuf := &bytes.Buffer{}
	writeCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	writeCmd.SetOut(writeBuf)
	writeCmd.SetErr(writeBuf)
	writeCmd.SetArgs([]string{"--name", "onboarding", "--candidate", original, "--snapshots-dir", snapshotsDir})
	require.NoError(t, writeCmd.Execute())

	updated := filepath.Join(dir, "updated.rpk")
	recordFixture(t, updated, "run-1", "hello", "a brand new answer")

	updateBuf := &bytes.Buffer{}
	updateCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	updateCmd.SetOut(updateBuf)
	updateCmd.SetErr(updateBuf)
	updateCmd.SetArgs([]string{"--name", "onboarding", "--candidate", updated, "--snapshots-dir", snapshotsDir, "--update"})
	require.NoError(t, updateCmd.Execute())
	assert.Contains(t, updateBuf.String(), `"baseline_written"`)

	checkBuf := &bytes.Buffer{}
	checkCmd := NewSnapshotAssertCommand(&RootOptions{Format: "json"})
	checkCmd.SetOut(checkBuf)
	checkCmd.SetErr(checkBuf)
	checkCmd.SetArgs([]string{"--name", "onboarding", "--candidate", updated, "--snapshots-dir", snapshotsDir})
	require.NoError(t, checkCmd.Execute())
	assert.Contains(t, checkBuf.String(), `"status":"pass"`)
}
