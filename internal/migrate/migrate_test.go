package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/rkerr"
)

const sample09 = `{
  "version": "0.9",
  "payload": {
    "run": {
      "id": "run-1",
      "env_fingerprint": {"os": "linux"},
      "runtime": {"go": "1.22"},
      "steps": [
        {
          "id": "step-000001",
          "type": "model.request",
          "request": {"prompt": "hi"},
          "response": null,
          "step_hash": "sha256:deadbeef"
        }
      ]
    }
  }
}`

const sample1y = `{
  "version": "1.3",
  "payload": {
    "run": {
      "id": "run-2",
      "environment_fingerprint": {"os": "linux"},
      "runtime_versions": {"go": "1.22"},
      "steps": [
        {
          "id": "step-000001",
          "type": "model.response",
          "input": null,
          "output": "hello",
          "hash": "sha256:0000000000000000000000000000000000000000000000000000000000000000"
        }
      ]
    }
  }
}`

func TestMigrateFrom09RenamesFields(t *testing.T) {
	run, summary, err := Migrate([]byte(sample09), canon.Options{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, map[string]string{"os": "linux"}, run.EnvironmentFingerprint)
	assert.Equal(t, map[string]string{"go": "1.22"}, run.RuntimeVersions)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, canon.String("hi"), run.Steps[0].Input.(canon.Object)["prompt"])

	assert.Equal(t, "0.9", summary.SourceVersion)
	assert.Equal(t, "1.0", summary.TargetVersion)
	assert.Equal(t, "migrated", summary.MigrationStatus)
	assert.Equal(t, 1, summary.RecomputedStepHashes)
	assert.Equal(t, 0, summary.PreservedStepHashes)
}

func TestMigrateFrom1yRewritesCanonically(t *testing.T) {
	run, summary, err := Migrate([]byte(sample1y), canon.Options{})
	require.NoError(t, err)

	assert.Equal(t, "run-2", run.ID)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "1.3", summary.SourceVersion)
	assert.Equal(t, "1.0", summary.TargetVersion)
	assert.Equal(t, 1, summary.RecomputedStepHashes)
}

func TestMigrateRejectsUnsupportedMajor(t *testing.T) {
	raw := `{"version": "2.0", "payload": {"run": {}}}`
	_, _, err := Migrate([]byte(raw), canon.Options{})
	require.Error(t, err)
	assert.Equal(t, rkerr.KindUnsupportedVersion, rkerr.KindOf(err))
}

func TestMigrateRejectsMalformedVersion(t *testing.T) {
	raw := `{"version": "garbage", "payload": {"run": {}}}`
	_, _, err := Migrate([]byte(raw), canon.Options{})
	require.Error(t, err)
	assert.Equal(t, rkerr.KindUnsupportedVersion, rkerr.KindOf(err))
}

func TestMigrateRejectsInvalidJSON(t *testing.T) {
	_, _, err := Migrate([]byte("not json"), canon.Options{})
	require.Error(t, err)
	assert.Equal(t, rkerr.KindMalformedPayload, rkerr.KindOf(err))
}

func TestMigrateRejectsDuplicateKeys(t *testing.T) {
	raw := `{"version": "1.0", "version": "1.0", "payload": {"run": {}}}`
	_, _, err := Migrate([]byte(raw), canon.Options{})
	require.Error(t, err)
	assert.Equal(t, rkerr.KindDuplicateKey, rkerr.KindOf(err))
}

func TestMigrateRejectsMissingRun(t *testing.T) {
	raw := `{"version": "1.0", "payload": {}}`
	_, _, err := Migrate([]byte(raw), canon.Options{})
	require.Error(t, err)
	assert.Equal(t, rkerr.KindMalformedPayload, rkerr.KindOf(err))
}
