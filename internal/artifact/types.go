// Package artifact implements ReplayKit's artifact model and on-disk
// codec (§3, §4.3): the Envelope/Run/Step entities, schema-validated
// atomic read/write, and the policy value types shared by capture,
// replay, and redaction.
package artifact

import (
	"fmt"
	"time"

	"github.com/replaykit/replaykit/internal/canon"
)

// CurrentVersion is the schema version newly written artifacts carry.
const CurrentVersion = "1.0"

// StepType is the closed set of boundary-event kinds §3 defines.
type StepType string

const (
	StepPromptRender  StepType = "prompt.render"
	StepModelRequest  StepType = "model.request"
	StepModelResponse StepType = "model.response"
	StepToolRequest   StepType = "tool.request"
	StepToolResponse  StepType = "tool.response"
	StepErrorEvent    StepType = "error.event"
	StepOutputFinal   StepType = "output.final"
)

// ValidStepTypes is the closed set, used to validate incoming step
// types at construction time.
var ValidStepTypes = map[StepType]bool{
	StepPromptRender:  true,
	StepModelRequest:  true,
	StepModelResponse: true,
	StepToolRequest:   true,
	StepToolResponse:  true,
	StepErrorEvent:    true,
	StepOutputFinal:   true,
}

// Step is one observed boundary event inside a run (§3).
type Step struct {
	ID       string       // "step-NNNNNN", monotonic within the run
	Type     StepType
	Input    canon.Value
	Output   canon.Value
	Metadata canon.Object
	Hash     string // "sha256:" + 64 lowercase hex
}

// StepIDFormat renders a 1-based sequence number as "step-NNNNNN".
func StepIDFormat(seq int64) string {
	return fmt.Sprintf("step-%06d", seq)
}

// Run is one captured execution (§3).
type Run struct {
	ID                     string
	Timestamp              time.Time
	EnvironmentFingerprint map[string]string
	RuntimeVersions        map[string]string
	Steps                  []Step
}

// Signature is the optional keyed-MAC block persisted alongside an
// envelope (§3, §4.2).
type Signature struct {
	Algorithm string // always "hmac-sha256" when present
	KeyID     string
	Value     string // hex-encoded HMAC
}

// Envelope is the on-disk container (§3).
type Envelope struct {
	Version   string
	Metadata  map[string]any // must include run_id, created_at
	Run       Run
	Checksum  string
	Signature *Signature
}

// CanonOptions returns the canon.Options shared by every artifact
// canonicalization site: "timestamp" and "created_at" are
// timestamp-shaped; "path", "file_path", and "cwd" are path-shaped. This is the
// concrete resolution of §4.1's "determined by context keys listed in
// the denylist contract" for ReplayKit's own field names.
func CanonOptions() canon.Options {
	return canon.Options{
		TimestampKeys: map[string]bool{
			"timestamp":  true,
			"created_at": true,
		},
		PathKeys: map[string]bool{
			"path":      true,
			"file_path": true,
			"cwd":       true,
		},
	}
}
