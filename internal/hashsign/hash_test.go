package hashsign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/canon"
)

func TestStepHashDeterministic(t *testing.T) {
	input := canon.Object{"prompt": canon.String("hi")}
	output := canon.Object{"text": canon.String("hello")}
	metadata := canon.Object{"model": canon.String("claude"), "duration_ms": canon.Int(42)}

	h1, err := StepHash("model.response", input, output, metadata, canon.Options{})
	require.NoError(t, err)
	h2, err := StepHash("model.response", input, output, metadata, canon.Options{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)
}

func TestStepHashIgnoresVolatileMetadata(t *testing.T) {
	input := canon.Object{"a": canon.Int(1)}
	output := canon.Object{"b": canon.Int(2)}

	h1, err := StepHash("tool.response", input, output, canon.Object{"duration_ms": canon.Int(10)}, canon.Options{})
	require.NoError(t, err)
	h2, err := StepHash("tool.response", input, output, canon.Object{"duration_ms": canon.Int(99999)}, canon.Options{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "volatile key must not affect the hash")
}

func TestStepHashRequestIDVolatileOnlyWhenFlagged(t *testing.T) {
	input := canon.Object{"a": canon.Int(1)}
	output := canon.Object{"b": canon.Int(2)}

	withFlagA := canon.Object{"request_id": canon.String("aaa"), "request_id_volatile": canon.Bool(true)}
	withFlagB := canon.Object{"request_id": canon.String("bbb"), "request_id_volatile": canon.Bool(true)}
	h1, err := StepHash("tool.response", input, output, withFlagA, canon.Options{})
	require.NoError(t, err)
	h2, err := StepHash("tool.response", input, output, withFlagB, canon.Options{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	unflaggedA := canon.Object{"request_id": canon.String("aaa")}
	unflaggedB := canon.Object{"request_id": canon.String("bbb")}
	h3, err := StepHash("tool.response", input, output, unflaggedA, canon.Options{})
	require.NoError(t, err)
	h4, err := StepHash("tool.response", input, output, unflaggedB, canon.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, h3, h4, "unflagged request_id must affect the hash")
}

func TestArtifactChecksumDeterministic(t *testing.T) {
	metadata := canon.Object{"run_id": canon.String("run-1")}
	payload := canon.Object{"run": canon.Object{"id": canon.String("run-1")}}

	c1, err := ArtifactChecksum("1.0", metadata, payload, canon.Options{})
	require.NoError(t, err)
	c2, err := ArtifactChecksum("1.0", metadata, payload, canon.Options{})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestSignAndVerify(t *testing.T) {
	key := []byte("test-signing-key")
	metadata := canon.Object{"run_id": canon.String("run-1")}
	payload := canon.Object{"run": canon.Object{"id": canon.String("run-1")}}
	checksum := "sha256:deadbeef"

	sig, err := Sign(key, "1.0", metadata, payload, checksum, canon.Options{})
	require.NoError(t, err)

	ok, err := Verify(key, "1.0", metadata, payload, checksum, sig, canon.Options{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify([]byte("wrong-key"), "1.0", metadata, payload, checksum, sig, canon.Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}
