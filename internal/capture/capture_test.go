package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/redact"
)

func openScope(t *testing.T, ip artifact.InterceptionPolicy) (*Manager, *Scope) {
	t.Helper()
	m := NewManager()
	s, err := m.OpenCapture("run-1", map[string]string{"os": "linux"}, ip, redact.Policy{}, artifact.CanonOptions())
	require.NoError(t, err)
	return m, s
}

func TestStepIDsAreGapFreeAndOrdered(t *testing.T) {
	_, s := openScope(t, artifact.DefaultInterceptionPolicy())

	_, err := s.RecordModelCall(ModelCall{Input: canon.String("hi"), Output: canon.String("hello")})
	require.NoError(t, err)
	_, err = s.RecordToolCall(ToolCall{Input: canon.String("args"), Output: canon.String("result")})
	require.NoError(t, err)

	run := s.Run()
	require.Len(t, run.Steps, 4)
	assert.Equal(t, "step-000001", run.Steps[0].ID)
	assert.Equal(t, "step-000002", run.Steps[1].ID)
	assert.Equal(t, "step-000003", run.Steps[2].ID)
	assert.Equal(t, "step-000004", run.Steps[3].ID)
}

func TestModelBoundaryDeniedRecordsErrorEvent(t *testing.T) {
	ip := artifact.DefaultInterceptionPolicy()
	ip.AllowModel = false
	_, s := openScope(t, ip)

	rec, err := s.RecordModelCall(ModelCall{Input: canon.String("hi"), Output: canon.String("hello")})
	require.NoError(t, err)
	require.Error(t, rec.Err)

	run := s.Run()
	require.Len(t, run.Steps, 1)
	assert.Equal(t, artifact.StepErrorEvent, run.Steps[0].Type)
}

func TestHTTPHostNotAllowlisted(t *testing.T) {
	ip := artifact.DefaultInterceptionPolicy()
	ip.AllowedHosts = []string{"api.example.com"}
	_, s := openScope(t, ip)

	rec, err := s.RecordHTTPCall(HTTPCall{Host: "evil.example.com", Input: canon.String("req"), Output: canon.String("resp")})
	require.NoError(t, err)
	require.Error(t, rec.Err)
	run := s.Run()
	require.Len(t, run.Steps, 1)
	assert.Equal(t, artifact.StepErrorEvent, run.Steps[0].Type)
}

func TestHTTPHostAllowlisted(t *testing.T) {
	ip := artifact.DefaultInterceptionPolicy()
	ip.AllowedHosts = []string{"api.example.com"}
	_, s := openScope(t, ip)

	rec, err := s.RecordHTTPCall(HTTPCall{Host: "API.Example.com", Input: canon.String("req"), Output: canon.String("resp")})
	require.NoError(t, err)
	require.NoError(t, rec.Err)
	run := s.Run()
	require.Len(t, run.Steps, 2)
}

func TestHTTPBodyDroppedWhenCaptureDisabled(t *testing.T) {
	ip := artifact.DefaultInterceptionPolicy()
	ip.CaptureHTTPBodies = false
	_, s := openScope(t, ip)

	_, err := s.RecordHTTPCall(HTTPCall{Host: "api.example.com", Input: canon.String("secret body"), Output: canon.String("secret resp")})
	require.NoError(t, err)
	run := s.Run()
	require.Len(t, run.Steps, 2)
	assert.Equal(t, canon.Value(canon.Null{}), run.Steps[0].Input)
}

func TestRedactionMasksSensitiveMetadata(t *testing.T) {
	_, s := openScope(t, artifact.DefaultInterceptionPolicy())
	_, err := s.RecordModelCall(ModelCall{
		Input:    canon.String("hi"),
		Output:   canon.String("hello"),
		Metadata: canon.Object{"authorization": canon.String("Bearer abc123xyz456")},
	})
	require.NoError(t, err)
	run := s.Run()
	meta := run.Steps[0].Metadata
	assert.Equal(t, canon.String(redact.Masked), meta["authorization"])
}

func TestNestedScopesStack(t *testing.T) {
	m := NewManager()
	outer, err := m.OpenCapture("run-outer", nil, artifact.DefaultInterceptionPolicy(), redact.Policy{}, artifact.CanonOptions())
	require.NoError(t, err)
	assert.Equal(t, outer, m.Current())

	inner, err := m.OpenCapture("run-inner", nil, artifact.DefaultInterceptionPolicy(), redact.Policy{}, artifact.CanonOptions())
	require.NoError(t, err)
	assert.Equal(t, inner, m.Current())

	_, err = m.Close(inner)
	require.NoError(t, err)
	assert.Equal(t, outer, m.Current())

	_, err = m.Close(outer)
	require.NoError(t, err)
	assert.Nil(t, m.Current())
}

func TestAssembleStream(t *testing.T) {
	out := AssembleStream([]string{"Hel", "lo,", " world"}, true)
	assert.Equal(t, canon.String("Hello, world"), out["assembled_text"])
	assert.Equal(t, canon.Bool(true), out["complete"])
	events := out["output.stream.events"].(canon.Array)
	require.Len(t, events, 3)
	first := events[0].(canon.Object)
	assert.Equal(t, canon.Int(1), first["index"])
}
