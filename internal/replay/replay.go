// Package replay implements ReplayKit's replay core (§4.6): stub-mode
// and hybrid-mode replay over a captured artifact, guarded by a
// process-wide network deny and optional nondeterminism checks.
//
// Stub mode's "same code path, no special replay mode" doctrine is
// grounded on the teacher's engine/replay.go commentary on structural
// idempotency: normal execution and replay share a path, and
// content-addressed ids make re-application a no-op. ReplayKit adapts
// this into "replay re-emits recorded output unchanged" rather than
// "re-insertion is a no-op write", since replay never touches a live
// store.
package replay

import (
	"time"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// Config parameterizes a replay run (§3's ReplayConfig, §4.6).
type Config struct {
	Seed          int64
	FixedClock    time.Time
	HasFixedClock bool
	Nondeterminism Mode // off|warn|fail
}

// Mode is the nondeterminism guardrail mode (§4.6).
type Mode string

const (
	ModeOff  Mode = "off"
	ModeWarn Mode = "warn"
	ModeFail Mode = "fail"
)

// Result is what a replay operation produces: the new run plus any
// nondeterminism findings surfaced under warn mode.
type Result struct {
	Run      artifact.Run
	Findings []Finding
}

// Stub replays source in stub mode (§4.6): for each step, synthesize an
// output step with the recorded output unchanged, and set the run
// timestamp; the run-level replay metadata is built separately by
// ReplayMetadata. Given identical (source, seed, fixed_clock), two
// calls produce value-equal runs — and, once written through
// internal/artifact, byte-identical files.
func Stub(source artifact.Run, cfg Config, canonOpts canon.Options) (Result, error) {
	release := InstallNetworkGuard()
	defer release()

	findings, err := detectNondeterminism(source, cfg)
	if err != nil {
		return Result{}, err
	}

	steps := make([]artifact.Step, len(source.Steps))
	copy(steps, source.Steps)

	run := artifact.Run{
		ID:                     source.ID,
		Timestamp:              replayTimestamp(cfg),
		EnvironmentFingerprint: source.EnvironmentFingerprint,
		RuntimeVersions:        source.RuntimeVersions,
		Steps:                  steps,
	}

	return Result{Run: run, Findings: findings}, nil
}

func replayTimestamp(cfg Config) time.Time {
	if cfg.HasFixedClock {
		return cfg.FixedClock
	}
	return time.Now().UTC()
}

// ReplayMetadata builds the run-level replay metadata §4.6 requires:
// replay_of, seed, and fixed_clock (when set).
func ReplayMetadata(sourceRunID string, cfg Config) map[string]any {
	m := map[string]any{
		"replay_of": sourceRunID,
		"seed":      cfg.Seed,
	}
	if cfg.HasFixedClock {
		m["fixed_clock"] = cfg.FixedClock.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// applyNondeterminismPolicy turns findings into a fatal error under
// fail mode, or leaves them attached (for the caller to report) under
// warn mode. off mode suppresses detection entirely upstream.
func applyNondeterminismPolicy(cfg Config, findings []Finding) error {
	if cfg.Nondeterminism != ModeFail || len(findings) == 0 {
		return nil
	}
	return rkerr.New(rkerr.KindNondeterminismDetected, "nondeterminism_detected", "replay source shows signs of unseeded randomness or unstable time reads").
		WithDetails(map[string]any{"findings": findingsToAny(findings)})
}

func findingsToAny(findings []Finding) []map[string]any {
	out := make([]map[string]any, len(findings))
	for i, f := range findings {
		out[i] = map[string]any{"step_id": f.StepID, "reason": f.Reason}
	}
	return out
}
