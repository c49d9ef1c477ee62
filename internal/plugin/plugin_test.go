package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaykit/replaykit/internal/artifact"
)

type recordingCapturePlugin struct {
	started []string
	steps   []artifact.Step
	ended   []artifact.Run
}

func (p *recordingCapturePlugin) APIVersion() int               { return APIVersion }
func (p *recordingCapturePlugin) OnCaptureStart(runID string)    { p.started = append(p.started, runID) }
func (p *recordingCapturePlugin) OnStep(step artifact.Step)      { p.steps = append(p.steps, step) }
func (p *recordingCapturePlugin) OnCaptureEnd(run artifact.Run)  { p.ended = append(p.ended, run) }

type panickingCapturePlugin struct{}

func (panickingCapturePlugin) APIVersion() int            { return APIVersion }
func (panickingCapturePlugin) OnCaptureStart(string)      { panic("boom") }
func (panickingCapturePlugin) OnStep(artifact.Step)       {}
func (panickingCapturePlugin) OnCaptureEnd(artifact.Run)  {}

type wrongVersionPlugin struct{}

func (wrongVersionPlugin) APIVersion() int           { return APIVersion + 1 }
func (wrongVersionPlugin) OnCaptureStart(string)     {}
func (wrongVersionPlugin) OnStep(artifact.Step)      {}
func (wrongVersionPlugin) OnCaptureEnd(artifact.Run) {}

func TestRegistryNotifiesRegisteredCapturePlugin(t *testing.T) {
	r := NewRegistry()
	p := &recordingCapturePlugin{}
	require.NoError(t, r.RegisterCapture(p))

	r.NotifyCaptureStart("run-1")
	r.NotifyStep(artifact.Step{ID: "step-000001"})
	r.NotifyCaptureEnd(artifact.Run{ID: "run-1"})

	assert.Equal(t, []string{"run-1"}, p.started)
	require.Len(t, p.steps, 1)
	require.Len(t, p.ended, 1)
}

func TestRegisterRejectsIncompatibleAPIMajor(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterCapture(wrongVersionPlugin{})
	require.Error(t, err)
}

func TestPanickingPluginIsIsolatedAndRecorded(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCapture(panickingCapturePlugin{}))

	assert.NotPanics(t, func() {
		r.NotifyCaptureStart("run-1")
	})

	findings := r.Diagnostics()
	require.Len(t, findings, 1)
	assert.Equal(t, "capture_start", findings[0].Hook)
}

func TestOneFailingPluginDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCapture(panickingCapturePlugin{}))
	ok := &recordingCapturePlugin{}
	require.NoError(t, r.RegisterCapture(ok))

	r.NotifyCaptureStart("run-1")

	assert.Equal(t, []string{"run-1"}, ok.started)
	assert.Len(t, r.Diagnostics(), 1)
}
