package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/artifact"
)

func TestBundleRewritesArtifactWithRecomputedHashes(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.rpk")
	recordFixture(t, source, "run-1", "hello", "world")

	out := filepath.Join(dir, "bundled.rpk")
	buf := &bytes.Buffer{}
	cmd := NewBundleCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--source", source, "--out", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"status":"ok"`)

	env, err := artifact.Read(out, artifact.ReadOptions{}, artifact.CanonOptions())
	require.NoError(t, err)
	for _, step := range env.Run.Steps {
		assert.NotEmpty(t, step.Hash)
	}
}

func TestBundleFailsOnMissingSource(t *testing.T) {
	dir := t.TempDir()
	buf := &bytes.Buffer{}
	cmd := NewBundleCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--source", filepath.Join(dir, "missing.rpk"), "--out", filepath.Join(dir, "out.rpk")})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
}
