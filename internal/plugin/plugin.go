// Package plugin implements ReplayKit's hook registry (§9): small
// interfaces per hook family (capture, replay, diff), each an
// APIVersion method plus two or three hook methods,
// version-gated registration, and panic/error isolation so a failing
// plugin never aborts the core operation.
//
// Loading plugins from disk (dynamic loading mechanics) is explicitly
// out of scope (§2 Non-goals); this package only registers and invokes
// already-constructed Go values.
package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/replaykit/replaykit/internal/artifact"
)

// APIVersion is the plugin hook API's major version. Hosts reject
// plugins declaring an incompatible major (§9).
const APIVersion = 1

// CapturePlugin observes capture lifecycle events. Grounded on the
// teacher's small-interface discipline (engine.FlowTokenGenerator):
// one method per lifecycle point rather than one fat interface.
type CapturePlugin interface {
	APIVersion() int
	OnCaptureStart(runID string)
	OnStep(step artifact.Step)
	OnCaptureEnd(run artifact.Run)
}

// ReplayPlugin observes replay lifecycle events.
type ReplayPlugin interface {
	APIVersion() int
	OnReplayStart(sourceRunID string)
	OnReplayEnd(run artifact.Run)
}

// DiffPlugin observes diff lifecycle events.
type DiffPlugin interface {
	APIVersion() int
	OnDiffStart(leftRunID, rightRunID string)
	OnDiffEnd(result any)
}

// Finding is one isolated plugin failure, recorded rather than
// propagated (§9).
type Finding struct {
	Plugin string
	Hook   string
	Err    error
}

// Registry holds registered plugins and a diagnostics buffer of
// isolated failures. The zero value is ready to use.
type Registry struct {
	mu sync.Mutex

	capture []CapturePlugin
	replay  []ReplayPlugin
	diff    []DiffPlugin

	diagnostics []Finding
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterCapture adds a capture plugin, rejecting an incompatible API
// major.
func (r *Registry) RegisterCapture(p CapturePlugin) error {
	if err := checkVersion(p.APIVersion()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture = append(r.capture, p)
	return nil
}

// RegisterReplay adds a replay plugin, rejecting an incompatible API
// major.
func (r *Registry) RegisterReplay(p ReplayPlugin) error {
	if err := checkVersion(p.APIVersion()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replay = append(r.replay, p)
	return nil
}

// RegisterDiff adds a diff plugin, rejecting an incompatible API major.
func (r *Registry) RegisterDiff(p DiffPlugin) error {
	if err := checkVersion(p.APIVersion()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diff = append(r.diff, p)
	return nil
}

func checkVersion(v int) error {
	if v != APIVersion {
		return fmt.Errorf("plugin: unsupported plugin API major %d, host supports %d", v, APIVersion)
	}
	return nil
}

// Diagnostics returns every isolated plugin failure recorded so far.
func (r *Registry) Diagnostics() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Finding, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

func (r *Registry) record(f Finding) {
	r.mu.Lock()
	r.diagnostics = append(r.diagnostics, f)
	r.mu.Unlock()
	slog.Warn("plugin hook failed", "plugin", f.Plugin, "hook", f.Hook, "error", f.Err)
}

func (r *Registry) isolate(pluginName, hook string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.record(Finding{Plugin: pluginName, Hook: hook, Err: fmt.Errorf("panic: %v", rec)})
		}
	}()
	fn()
}

// NotifyCaptureStart invokes OnCaptureStart on every registered capture
// plugin, isolating panics per-plugin.
func (r *Registry) NotifyCaptureStart(runID string) {
	for _, p := range r.snapshotCapture() {
		p := p
		r.isolate(pluginName(p), "capture_start", func() { p.OnCaptureStart(runID) })
	}
}

// NotifyStep invokes OnStep on every registered capture plugin.
func (r *Registry) NotifyStep(step artifact.Step) {
	for _, p := range r.snapshotCapture() {
		p := p
		r.isolate(pluginName(p), "capture_step", func() { p.OnStep(step) })
	}
}

// NotifyCaptureEnd invokes OnCaptureEnd on every registered capture
// plugin.
func (r *Registry) NotifyCaptureEnd(run artifact.Run) {
	for _, p := range r.snapshotCapture() {
		p := p
		r.isolate(pluginName(p), "capture_end", func() { p.OnCaptureEnd(run) })
	}
}

// NotifyReplayStart invokes OnReplayStart on every registered replay
// plugin.
func (r *Registry) NotifyReplayStart(sourceRunID string) {
	for _, p := range r.snapshotReplay() {
		p := p
		r.isolate(pluginName(p), "replay_start", func() { p.OnReplayStart(sourceRunID) })
	}
}

// NotifyReplayEnd invokes OnReplayEnd on every registered replay plugin.
func (r *Registry) NotifyReplayEnd(run artifact.Run) {
	for _, p := range r.snapshotReplay() {
		p := p
		r.isolate(pluginName(p), "replay_end", func() { p.OnReplayEnd(run) })
	}
}

// NotifyDiffStart invokes OnDiffStart on every registered diff plugin.
func (r *Registry) NotifyDiffStart(leftRunID, rightRunID string) {
	for _, p := range r.snapshotDiff() {
		p := p
		r.isolate(pluginName(p), "diff_start", func() { p.OnDiffStart(leftRunID, rightRunID) })
	}
}

// NotifyDiffEnd invokes OnDiffEnd on every registered diff plugin.
func (r *Registry) NotifyDiffEnd(result any) {
	for _, p := range r.snapshotDiff() {
		p := p
		r.isolate(pluginName(p), "diff_end", func() { p.OnDiffEnd(result) })
	}
}

func (r *Registry) snapshotCapture() []CapturePlugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CapturePlugin, len(r.capture))
	copy(out, r.capture)
	return out
}

func (r *Registry) snapshotReplay() []ReplayPlugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReplayPlugin, len(r.replay))
	copy(out, r.replay)
	return out
}

func (r *Registry) snapshotDiff() []DiffPlugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DiffPlugin, len(r.diff))
	copy(out, r.diff)
	return out
}

func pluginName(p any) string {
	return fmt.Sprintf("%T", p)
}
