package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
)

func sampleSourceRun() artifact.Run {
	return artifact.Run{
		ID:        "run-1",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Steps: []artifact.Step{
			{ID: "step-000001", Type: artifact.StepModelRequest, Input: canon.String("hi"), Output: canon.Null{}, Hash: "sha256:aaa"},
			{ID: "step-000002", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.String("hello"), Hash: "sha256:bbb"},
		},
	}
}

func TestStubReplayIsDeterministic(t *testing.T) {
	src := sampleSourceRun()
	cfg := Config{Seed: 42, HasFixedClock: true, FixedClock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	r1, err := Stub(src, cfg, canon.Options{})
	require.NoError(t, err)
	r2, err := Stub(src, cfg, canon.Options{})
	require.NoError(t, err)

	assert.Equal(t, r1.Run, r2.Run)
	assert.False(t, NetworkGuardTripped(), "guard must be released on exit")
}

func TestStubReplayPreservesStepOutputUnchanged(t *testing.T) {
	src := sampleSourceRun()
	result, err := Stub(src, Config{}, canon.Options{})
	require.NoError(t, err)
	require.Len(t, result.Run.Steps, 2)
	assert.Equal(t, src.Steps[1].Output, result.Run.Steps[1].Output)
}

func TestHybridSubstitutesRerunStepType(t *testing.T) {
	primary := sampleSourceRun()
	rerun := sampleSourceRun()
	rerun.Steps[1].Output = canon.String("rerun output")
	rerun.Steps[1].Hash = "sha256:ccc"

	policy := HybridPolicy{RerunStepTypes: map[artifact.StepType]bool{artifact.StepModelResponse: true}}
	result, err := Hybrid(primary, rerun, policy, Config{}, canon.Options{})
	require.NoError(t, err)

	assert.Equal(t, canon.String("rerun output"), result.Run.Steps[1].Output)
	assert.Equal(t, "sha256:ccc", result.Run.Steps[1].Hash)
	assert.Equal(t, primary.Steps[0].Output, result.Run.Steps[0].Output)
}

func TestHybridStrictAlignmentFailsOnCountMismatch(t *testing.T) {
	primary := sampleSourceRun()
	rerun := sampleSourceRun()
	rerun.Steps = rerun.Steps[:1]

	policy := HybridPolicy{StrictAlignment: true}
	_, err := Hybrid(primary, rerun, policy, Config{}, canon.Options{})
	require.Error(t, err)
}

func TestHybridStrictAlignmentFailsOnTypeMismatch(t *testing.T) {
	primary := sampleSourceRun()
	rerun := sampleSourceRun()
	rerun.Steps[0].Type = artifact.StepToolRequest

	policy := HybridPolicy{StrictAlignment: true}
	_, err := Hybrid(primary, rerun, policy, Config{}, canon.Options{})
	require.Error(t, err)
}

func TestNetworkGuardBlocksDuringReplayAndReleasesAfter(t *testing.T) {
	release := InstallNetworkGuard()
	assert.True(t, NetworkGuardTripped())
	require.Error(t, CheckNetworkGuard())
	release()
	assert.False(t, NetworkGuardTripped())
	require.NoError(t, CheckNetworkGuard())
}

func TestNondeterminismWarnModeReportsFindingsWithoutFailing(t *testing.T) {
	src := sampleSourceRun()
	src.Steps[0].Metadata = canon.Object{"sampling_temperature": canon.Float(0.9)}

	result, err := Stub(src, Config{Nondeterminism: ModeWarn}, canon.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Findings)
}

func TestNondeterminismFailModeAborts(t *testing.T) {
	src := sampleSourceRun()
	src.Steps[0].Metadata = canon.Object{"sampling_temperature": canon.Float(0.9)}

	_, err := Stub(src, Config{Nondeterminism: ModeFail}, canon.Options{})
	require.Error(t, err)
}

func TestReplayMetadataIncludesFixedClockWhenSet(t *testing.T) {
	cfg := Config{Seed: 7, HasFixedClock: true, FixedClock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := ReplayMetadata("run-1", cfg)
	assert.Equal(t, "run-1", m["replay_of"])
	assert.Equal(t, int64(7), m["seed"])
	assert.Contains(t, m, "fixed_clock")
}
