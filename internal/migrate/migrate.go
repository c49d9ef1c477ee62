// Package migrate implements ReplayKit's migration layer (§4.9):
// 0.9→1.0 field renames and 1.y→1.0 canonical rewrites, with hash
// recomputation and a typed failure taxonomy.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// Status is the outer migration result status.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Summary is the migration report (§4.9): `{status, source_version,
// target_version, migration_status, preserved_step_hashes,
// recomputed_step_hashes}`.
type Summary struct {
	Status                Status
	SourceVersion         string
	TargetVersion         string
	MigrationStatus       string
	PreservedStepHashes   int
	RecomputedStepHashes  int
}

// fieldMap09 is the 0.9 → 1.0 rename table (§4.9).
var fieldMap09 = map[string]string{
	"env_fingerprint": "environment_fingerprint",
	"runtime":         "runtime_versions",
}

var stepFieldMap09 = map[string]string{
	"request":    "input",
	"response":   "output",
	"step_hash":  "hash",
}

// Migrate reads raw JSON from an arbitrary-version artifact (already
// schema/checksum-verified by the caller via internal/artifact's own
// version-aware Read where possible) and produces a 1.0 Run plus a
// Summary. Source majors other than 0 or 1 are rejected.
func Migrate(raw []byte, canonOpts canon.Options) (artifact.Run, Summary, error) {
	decoded, err := canon.DecodeStrict(raw)
	if err != nil {
		var dup *canon.DuplicateKeyError
		if errors.As(err, &dup) && dup.Duplicate() {
			return artifact.Run{}, Summary{}, rkerr.New(rkerr.KindDuplicateKey, "duplicate_key", dup.Error()).
				WithDetails(map[string]any{"key": dup.Key})
		}
		return artifact.Run{}, Summary{}, rkerr.Wrap(rkerr.KindMalformedPayload, "invalid_json", "migration input is not valid JSON", err)
	}
	generic, ok := decoded.(map[string]any)
	if !ok {
		return artifact.Run{}, Summary{}, rkerr.New(rkerr.KindMalformedPayload, "not_an_object", "migration input root is not a JSON object")
	}

	versionRaw, _ := generic["version"].(string)
	major, _, ok := splitVersion(versionRaw)
	if !ok {
		return artifact.Run{}, Summary{}, rkerr.New(rkerr.KindUnsupportedVersion, "malformed_version", fmt.Sprintf("version %q is not MAJOR.MINOR", versionRaw))
	}

	var runMap map[string]any
	switch major {
	case "0":
		rm, err := migrateFrom09(generic)
		if err != nil {
			return artifact.Run{}, Summary{}, err
		}
		runMap = rm
	case "1":
		payload, _ := generic["payload"].(map[string]any)
		rm, _ := payload["run"].(map[string]any)
		if rm == nil {
			return artifact.Run{}, Summary{}, rkerr.New(rkerr.KindMalformedPayload, "missing_run", "artifact payload has no run")
		}
		runMap = rm
	default:
		return artifact.Run{}, Summary{}, rkerr.New(rkerr.KindUnsupportedVersion, "unsupported_major", fmt.Sprintf("source major %q is not supported", major)).
			WithDetails(map[string]any{"version": versionRaw})
	}

	runValue, err := canon.FromAny(runMap)
	if err != nil {
		return artifact.Run{}, Summary{}, rkerr.Wrap(rkerr.KindMalformedPayload, "malformed_payload", "migrated run does not canonicalize", err)
	}
	if _, err := canon.Canonicalize(runValue, canonOpts); err != nil {
		return artifact.Run{}, Summary{}, rkerr.Wrap(rkerr.KindMalformedPayload, "malformed_payload", "migrated run rejected by the canonical codec", err)
	}

	run, err := runFromGeneric(runMap)
	if err != nil {
		return artifact.Run{}, Summary{}, rkerr.Wrap(rkerr.KindMalformedPayload, "malformed_payload", "migrated run could not be decoded", err)
	}

	preserved, recomputed, err := recomputeHashes(&run, canonOpts)
	if err != nil {
		return artifact.Run{}, Summary{}, rkerr.Wrap(rkerr.KindRecomputeFailed, "recompute_failed", "step hash recomputation failed", err)
	}

	summary := Summary{
		Status:               StatusOK,
		SourceVersion:        versionRaw,
		TargetVersion:        artifact.CurrentVersion,
		MigrationStatus:      "migrated",
		PreservedStepHashes:  preserved,
		RecomputedStepHashes: recomputed,
	}
	return run, summary, nil
}

func splitVersion(v string) (major, minor string, ok bool) {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// migrateFrom09 applies the 0.9 rename table at the run and step level
// (§4.9).
func migrateFrom09(generic map[string]any) (map[string]any, error) {
	payload, _ := generic["payload"].(map[string]any)
	runMap, _ := payload["run"].(map[string]any)
	if runMap == nil {
		return nil, rkerr.New(rkerr.KindMalformedPayload, "missing_run", "0.9 artifact payload has no run")
	}

	renamed := make(map[string]any, len(runMap))
	for k, v := range runMap {
		newKey := k
		if mapped, ok := fieldMap09[k]; ok {
			newKey = mapped
		}
		renamed[newKey] = v
	}

	stepsRaw, _ := renamed["steps"].([]any)
	steps := make([]any, len(stepsRaw))
	for i, sv := range stepsRaw {
		sm, _ := sv.(map[string]any)
		renamedStep := make(map[string]any, len(sm))
		for k, v := range sm {
			newKey := k
			if mapped, ok := stepFieldMap09[k]; ok {
				newKey = mapped
			}
			renamedStep[newKey] = v
		}
		steps[i] = renamedStep
	}
	renamed["steps"] = steps

	return renamed, nil
}

func runFromGeneric(runMap map[string]any) (artifact.Run, error) {
	b, err := json.Marshal(runMap)
	if err != nil {
		return artifact.Run{}, err
	}
	var decoded struct {
		ID                     string            `json:"id"`
		Timestamp              string            `json:"timestamp"`
		EnvironmentFingerprint map[string]string `json:"environment_fingerprint"`
		RuntimeVersions        map[string]string `json:"runtime_versions"`
		Steps                  []struct {
			ID       string         `json:"id"`
			Type     string         `json:"type"`
			Input    any            `json:"input"`
			Output   any            `json:"output"`
			Metadata map[string]any `json:"metadata"`
			Hash     string         `json:"hash"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return artifact.Run{}, err
	}

	run := artifact.Run{
		ID:                     decoded.ID,
		EnvironmentFingerprint: decoded.EnvironmentFingerprint,
		RuntimeVersions:        decoded.RuntimeVersions,
	}
	for _, s := range decoded.Steps {
		input, err := canon.FromAny(s.Input)
		if err != nil {
			return artifact.Run{}, err
		}
		output, err := canon.FromAny(s.Output)
		if err != nil {
			return artifact.Run{}, err
		}
		var metadata canon.Object
		if s.Metadata != nil {
			mv, err := canon.FromAny(s.Metadata)
			if err != nil {
				return artifact.Run{}, err
			}
			metadata, _ = mv.(canon.Object)
		}
		run.Steps = append(run.Steps, artifact.Step{
			ID:       s.ID,
			Type:     artifact.StepType(s.Type),
			Input:    input,
			Output:   output,
			Metadata: metadata,
			Hash:     s.Hash,
		})
	}
	return run, nil
}

// recomputeHashes recomputes every step's hash from canonical content,
// counting how many already matched (preserved) versus changed
// (recomputed) — §4.9's hash-behavior rule.
func recomputeHashes(run *artifact.Run, canonOpts canon.Options) (preserved, recomputed int, err error) {
	for i, step := range run.Steps {
		newHash, herr := artifact.RecomputeHash(step, canonOpts)
		if herr != nil {
			return preserved, recomputed, herr
		}
		if newHash == step.Hash {
			preserved++
		} else {
			recomputed++
		}
		run.Steps[i].Hash = newHash
	}
	return preserved, recomputed, nil
}
