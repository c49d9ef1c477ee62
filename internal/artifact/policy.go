package artifact

import "time"

// InterceptionPolicy controls what a capture scope is allowed to
// observe (§3, §4.5).
type InterceptionPolicy struct {
	AllowModel        bool
	AllowTool         bool
	AllowHTTP         bool
	AllowedHosts      []string
	BlockedHosts      []string
	CaptureHTTPBodies bool
}

// DefaultInterceptionPolicy matches §4.4's "capture_http_bodies default
// false"; model and tool capture are permissive by default since the
// interesting denials are host-based, not step-type-based.
func DefaultInterceptionPolicy() InterceptionPolicy {
	return InterceptionPolicy{
		AllowModel:        true,
		AllowTool:         true,
		AllowHTTP:         true,
		CaptureHTTPBodies: false,
	}
}

// RedactionPolicy is the additive redaction policy (§4.4). Extra*
// fields only ever add to the built-in defaults in internal/redact;
// they cannot remove them.
type RedactionPolicy struct {
	Version                  string
	ExtraSensitiveFieldNames []string
	ExtraSecretValuePatterns []string
	ExtraSensitivePathPatterns []string
}

// ReplayConfig parameterizes a replay run (§3, §4.6).
type ReplayConfig struct {
	Seed        int64
	FixedClock  time.Time
	HasFixedClock bool
}

// HybridReplayPolicy controls which steps are rerun live versus served
// from the recorded artifact in hybrid replay mode (§3, §4.6).
type HybridReplayPolicy struct {
	RerunStepTypes  []StepType
	RerunStepIDs    []string
	StrictAlignment bool
}
