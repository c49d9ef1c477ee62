package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
)

func step(id string, typ artifact.StepType, output canon.Value, metadata canon.Object) artifact.Step {
	return artifact.Step{ID: id, Type: typ, Input: canon.Null{}, Output: output, Metadata: metadata, Hash: "sha256:" + id}
}

func TestDiffIdenticalRuns(t *testing.T) {
	run := artifact.Run{Steps: []artifact.Step{
		step("step-000001", artifact.StepModelResponse, canon.String("hi"), nil),
	}}
	result := DiffRuns(run, run, Options{})
	require.Len(t, result.Entries, 1)
	assert.Equal(t, StatusIdentical, result.Entries[0].Status)
	assert.Nil(t, result.FirstDivergence)
}

func TestDiffMissingRightAndLeft(t *testing.T) {
	left := artifact.Run{Steps: []artifact.Step{
		step("step-000001", artifact.StepModelResponse, canon.String("hi"), nil),
		step("step-000002", artifact.StepToolResponse, canon.String("x"), nil),
	}}
	right := artifact.Run{Steps: []artifact.Step{
		step("step-000001", artifact.StepModelResponse, canon.String("hi"), nil),
	}}

	result := DiffRuns(left, right, Options{})
	require.Len(t, result.Entries, 2)
	assert.Equal(t, StatusIdentical, result.Entries[0].Status)
	assert.Equal(t, StatusMissingRight, result.Entries[1].Status)
	require.NotNil(t, result.FirstDivergence)
	assert.Equal(t, 1, *result.FirstDivergence)

	reversed := DiffRuns(right, left, Options{})
	require.Len(t, reversed.Entries, 2)
	assert.Equal(t, StatusMissingLeft, reversed.Entries[1].Status)
}

func TestDiffChangedProducesFieldDeltas(t *testing.T) {
	left := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Object{"text": canon.String("hi")}, Hash: "sha256:aaa"},
	}}
	right := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Object{"text": canon.String("bye")}, Hash: "sha256:bbb"},
	}}

	result := DiffRuns(left, right, Options{})
	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	assert.Equal(t, StatusChanged, entry.Status)
	require.Len(t, entry.Deltas, 1)
	assert.Equal(t, "/output/text", entry.Deltas[0].Path)
	assert.Equal(t, DeltaReplaced, entry.Deltas[0].Kind)
	assert.Equal(t, "hi", entry.Deltas[0].Before)
	assert.Equal(t, "bye", entry.Deltas[0].After)
}

func TestDiffIgnoresVolatileMetadataUnlessStrict(t *testing.T) {
	left := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Null{},
			Metadata: canon.Object{"duration_ms": canon.Int(5)}, Hash: "sha256:aaa"},
	}}
	right := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Null{},
			Metadata: canon.Object{"duration_ms": canon.Int(500)}, Hash: "sha256:bbb"},
	}}

	lenient := DiffRuns(left, right, Options{})
	assert.Empty(t, lenient.Entries[0].Deltas)

	strict := DiffRuns(left, right, Options{Strict: true})
	assert.NotEmpty(t, strict.Entries[0].Deltas)
}

func TestDiffMaxChangesPerStepCapsAndMarksOverflow(t *testing.T) {
	left := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Object{"a": canon.Int(1), "b": canon.Int(1), "c": canon.Int(1)}, Hash: "sha256:aaa"},
	}}
	right := artifact.Run{Steps: []artifact.Step{
		{ID: "step-000001", Type: artifact.StepModelResponse, Input: canon.Null{}, Output: canon.Object{"a": canon.Int(2), "b": canon.Int(2), "c": canon.Int(2)}, Hash: "sha256:bbb"},
	}}

	result := DiffRuns(left, right, Options{MaxChangesPerStep: 1})
	require.Len(t, result.Entries[0].Deltas, 1)
	assert.True(t, result.Entries[0].Overflowed)
}

func TestFirstDivergenceStopsScanning(t *testing.T) {
	left := artifact.Run{Steps: []artifact.Step{
		step("step-000001", artifact.StepModelResponse, canon.String("a"), nil),
		step("step-000002", artifact.StepModelResponse, canon.String("b"), nil),
		step("step-000003", artifact.StepModelResponse, canon.String("c"), nil),
	}}
	right := artifact.Run{Steps: []artifact.Step{
		step("step-000001", artifact.StepModelResponse, canon.String("a"), nil),
	}}

	result := DiffRuns(left, right, Options{FirstDivergence: true})
	assert.Len(t, result.Entries, 2)
	require.NotNil(t, result.FirstDivergence)
	assert.Equal(t, 1, *result.FirstDivergence)
}

func TestExtractContext(t *testing.T) {
	metadata := canon.Object{
		"model":       canon.String("claude"),
		"temperature": canon.Float(0.7),
		"max_tokens":  canon.Int(256),
	}
	ctx := extractContext(metadata)
	assert.Equal(t, "claude", ctx.Model)
	require.NotNil(t, ctx.Temperature)
	assert.InDelta(t, 0.7, *ctx.Temperature, 0.0001)
	require.NotNil(t, ctx.MaxTokens)
	assert.Equal(t, int64(256), *ctx.MaxTokens)
}
