// Package config loads ReplayKit policy config documents (JSON, or CUE
// — valid JSON already satisfies CUE syntax, so both compile through the
// same path): interception, redaction, replay, hybrid-replay, and assert
// settings in one file, validated against an embedded schema and
// decoded with defaults applied.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/rkerr"
)

//go:embed schema.cue
var schemaSrc string

// PolicyConfig is the decoded, validated shape of a policy config
// document.
type PolicyConfig struct {
	Version      string
	Interception artifact.InterceptionPolicy
	Redaction    artifact.RedactionPolicy
	Replay       artifact.ReplayConfig
	Hybrid       artifact.HybridReplayPolicy
	Assert       AssertConfig
}

// AssertConfig mirrors internal/assertsnap.Options' field set as a
// config-file-decodable shape (assertsnap.Options is not decoded
// directly since it also carries a canon.Options, which is runtime
// state, not config).
type AssertConfig struct {
	Strict               bool
	SlowdownThresholdPct float64
	MaxChangesPerStep    int
}

// wireShape mirrors schema.cue's field names one-to-one for decoding.
type wireShape struct {
	Version      string `json:"version"`
	Interception struct {
		AllowModel        bool     `json:"allow_model"`
		AllowTool         bool     `json:"allow_tool"`
		AllowHTTP         bool     `json:"allow_http"`
		AllowedHosts      []string `json:"allowed_hosts"`
		BlockedHosts      []string `json:"blocked_hosts"`
		CaptureHTTPBodies bool     `json:"capture_http_bodies"`
	} `json:"interception"`
	Redaction struct {
		Version                    string   `json:"version"`
		ExtraSensitiveFieldNames   []string `json:"extra_sensitive_field_names"`
		ExtraSecretValuePatterns   []string `json:"extra_secret_value_patterns"`
		ExtraSensitivePathPatterns []string `json:"extra_sensitive_path_patterns"`
	} `json:"redaction"`
	Replay struct {
		Seed       int64  `json:"seed"`
		FixedClock string `json:"fixed_clock"`
	} `json:"replay"`
	HybridReplay struct {
		RerunStepTypes  []string `json:"rerun_step_types"`
		RerunStepIDs    []string `json:"rerun_step_ids"`
		StrictAlignment bool     `json:"strict_alignment"`
	} `json:"hybrid_replay"`
	Assert struct {
		Strict               bool    `json:"strict"`
		SlowdownThresholdPct float64 `json:"slowdown_threshold_pct"`
		MaxChangesPerStep    int     `json:"max_changes_per_step"`
	} `json:"assert"`
}

// Load reads a policy config file from disk and parses it.
func Load(path string) (PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse validates policy config bytes against schema.cue, fills in
// defaults, and decodes the result. Grounded on the teacher's
// cli/loader.go (cuecontext.New(), compile, then decode), redirected
// here from compiling concept/sync specs to validating and decoding
// ReplayKit policy documents.
func Parse(raw []byte, filename string) (PolicyConfig, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return PolicyConfig{}, fmt.Errorf("config: embedded schema is malformed: %w", err)
	}

	dataVal := ctx.CompileBytes(raw, cue.Filename(filename))
	if err := dataVal.Err(); err != nil {
		return PolicyConfig{}, rkerr.Wrap(rkerr.KindSchemaViolation, "config_parse_error", "policy config is not valid JSON/CUE", err)
	}

	merged := schemaVal.Unify(dataVal)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return PolicyConfig{}, rkerr.Wrap(rkerr.KindSchemaViolation, "config_schema_violation", "policy config failed schema validation", err)
	}

	var wire wireShape
	if err := merged.Decode(&wire); err != nil {
		return PolicyConfig{}, rkerr.Wrap(rkerr.KindSchemaViolation, "config_decode_error", "policy config could not be decoded", err)
	}

	return fromWire(wire)
}

func fromWire(w wireShape) (PolicyConfig, error) {
	cfg := PolicyConfig{
		Version: w.Version,
		Interception: artifact.InterceptionPolicy{
			AllowModel:        w.Interception.AllowModel,
			AllowTool:         w.Interception.AllowTool,
			AllowHTTP:         w.Interception.AllowHTTP,
			AllowedHosts:      w.Interception.AllowedHosts,
			BlockedHosts:      w.Interception.BlockedHosts,
			CaptureHTTPBodies: w.Interception.CaptureHTTPBodies,
		},
		Redaction: artifact.RedactionPolicy{
			Version:                    w.Redaction.Version,
			ExtraSensitiveFieldNames:   w.Redaction.ExtraSensitiveFieldNames,
			ExtraSecretValuePatterns:   w.Redaction.ExtraSecretValuePatterns,
			ExtraSensitivePathPatterns: w.Redaction.ExtraSensitivePathPatterns,
		},
		Hybrid: artifact.HybridReplayPolicy{
			RerunStepTypes:  stepTypesFromStrings(w.HybridReplay.RerunStepTypes),
			RerunStepIDs:    w.HybridReplay.RerunStepIDs,
			StrictAlignment: w.HybridReplay.StrictAlignment,
		},
		Assert: AssertConfig{
			Strict:               w.Assert.Strict,
			SlowdownThresholdPct: w.Assert.SlowdownThresholdPct,
			MaxChangesPerStep:    w.Assert.MaxChangesPerStep,
		},
	}

	cfg.Replay = artifact.ReplayConfig{Seed: w.Replay.Seed}
	if w.Replay.FixedClock != "" {
		t, err := time.Parse(time.RFC3339Nano, w.Replay.FixedClock)
		if err != nil {
			return PolicyConfig{}, rkerr.Wrap(rkerr.KindSchemaViolation, "invalid_fixed_clock", "replay.fixed_clock is not RFC3339", err)
		}
		cfg.Replay.FixedClock = t
		cfg.Replay.HasFixedClock = true
	}

	return cfg, nil
}

func stepTypesFromStrings(ss []string) []artifact.StepType {
	out := make([]artifact.StepType, 0, len(ss))
	for _, s := range ss {
		out = append(out, artifact.StepType(s))
	}
	return out
}
