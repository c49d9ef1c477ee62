// Package capture implements ReplayKit's capture core (§4.5): run-scoped
// recording of boundary events with policy enforcement and redaction
// applied before a step ever becomes part of the persisted run.
package capture

import (
	"sync"
	"time"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/hashsign"
	"github.com/replaykit/replaykit/internal/redact"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// Scope is a run-scoped recorder (§4.5). It owns the run being built
// and serializes every append so step ids stay gap-free and observable
// emission order is preserved even under concurrent recorders — the
// single mutex plays the role the teacher's single-writer SQLite
// connection (SetMaxOpenConns(1)) plays for its event store, reapplied
// here as a plain in-process lock since there is no SQL writer in the
// capture hot path.
type Scope struct {
	mu sync.Mutex

	parent *Scope

	interception artifact.InterceptionPolicy
	redaction    *redact.Compiled
	canonOpts    canon.Options
	clock        *clock

	run    artifact.Run
	closed bool
}

// Manager tracks the stack of active scopes, implementing §3's "nested
// entry activates the inner scope, exit restores the outer".
type Manager struct {
	mu    sync.Mutex
	stack []*Scope
}

// NewManager creates an empty scope manager.
func NewManager() *Manager {
	return &Manager{}
}

// Current returns the innermost active scope, or nil if none is open.
func (m *Manager) Current() *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// OpenCapture establishes a new run-scoped recorder, stacking it over
// whatever scope is currently active (§4.5's open_capture).
func (m *Manager) OpenCapture(runID string, metadata map[string]string, ip artifact.InterceptionPolicy, rp redact.Policy, canonOpts canon.Options) (*Scope, error) {
	compiled, err := redact.Compile(rp)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var parent *Scope
	if len(m.stack) > 0 {
		parent = m.stack[len(m.stack)-1]
	}

	s := &Scope{
		parent:       parent,
		interception: ip,
		redaction:    compiled,
		canonOpts:    canonOpts,
		clock:        newClock(),
		run: artifact.Run{
			ID:                     runID,
			Timestamp:              time.Now().UTC(),
			EnvironmentFingerprint: metadata,
			RuntimeVersions:        map[string]string{},
		},
	}
	m.stack = append(m.stack, s)
	return s, nil
}

// Close finalizes s's run and restores the enclosing scope as current.
// Close is idempotent; calling it more than once returns the same Run
// without re-popping the stack.
func (m *Manager) Close(s *Scope) (artifact.Run, error) {
	s.mu.Lock()
	if s.closed {
		run := s.run
		s.mu.Unlock()
		return run, nil
	}
	s.closed = true
	run := s.run
	s.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == s {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			break
		}
	}
	return run, nil
}

// Run returns a snapshot of the scope's run as built so far. Safe to
// call before Close, but the returned Steps slice reflects only steps
// appended up to the call.
func (s *Scope) Run() artifact.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	stepsCopy := make([]artifact.Step, len(s.run.Steps))
	copy(stepsCopy, s.run.Steps)
	run := s.run
	run.Steps = stepsCopy
	return run
}

// appendStep computes the step hash, assigns the next id, and appends
// to the run under the scope's lock. The id is taken only after hashing
// succeeds, so a failed step does not leave a gap.
func (s *Scope) appendStep(stepType artifact.StepType, input, output canon.Value, metadata canon.Object) (artifact.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := hashsign.StepHash(string(stepType), orNull(input), orNull(output), metadata, s.canonOpts)
	if err != nil {
		return artifact.Step{}, err
	}
	id := s.clock.next()
	step := artifact.Step{
		ID:       id,
		Type:     stepType,
		Input:    input,
		Output:   output,
		Metadata: metadata,
		Hash:     hash,
	}
	s.run.Steps = append(s.run.Steps, step)
	return step, nil
}

func orNull(v canon.Value) canon.Value {
	if v == nil {
		return canon.Null{}
	}
	return v
}

// recordDenied appends an error.event step documenting a boundary
// denial — §4.5's "a denied boundary ... is also recorded as an
// error.event step containing the reason and a redacted summary of the
// denied call", so artifacts always explain why a boundary was skipped.
func (s *Scope) recordDenied(kind BoundaryKind, deniedErr *rkerr.Error, summary canon.Value) (artifact.Step, error) {
	redactedSummary := s.redaction.Redact(summary, "")
	metadata := canon.Object{
		"boundary": canon.String(string(kind)),
		"reason":   canon.String(deniedErr.Code),
		"message":  canon.String(deniedErr.Message),
	}
	return s.appendStep(artifact.StepErrorEvent, canon.Null{}, redactedSummary, metadata)
}
