package artifact

import (
	"fmt"
	"time"

	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/hashsign"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// stepToCanon converts a Step to its canonical mapping representation
// for persistence. The step hash is not computed from this mapping but
// by hashsign.StepHash over type, input, output, and metadata.
func stepToCanon(s Step) canon.Object {
	return canon.Object{
		"id":       canon.String(s.ID),
		"type":     canon.String(string(s.Type)),
		"input":    orNull(s.Input),
		"output":   orNull(s.Output),
		"metadata": orEmptyObject(s.Metadata),
		"hash":     canon.String(s.Hash),
	}
}

func orNull(v canon.Value) canon.Value {
	if v == nil {
		return canon.Null{}
	}
	return v
}

func orEmptyObject(o canon.Object) canon.Value {
	if o == nil {
		return canon.Object{}
	}
	return o
}

func stepFromCanon(v canon.Value) (Step, error) {
	obj, ok := v.(canon.Object)
	if !ok {
		return Step{}, rkerr.New(rkerr.KindInvalidJSON, "step_not_object", "step is not a JSON object")
	}
	id, _ := obj["id"].(canon.String)
	typ, _ := obj["type"].(canon.String)
	if !ValidStepTypes[StepType(typ)] {
		return Step{}, rkerr.New(rkerr.KindSchemaViolation, "unknown_step_type", fmt.Sprintf("unknown step type %q", typ)).
			WithDetails(map[string]any{"step_id": string(id)})
	}
	metadata, _ := obj["metadata"].(canon.Object)
	hash, _ := obj["hash"].(canon.String)
	return Step{
		ID:       string(id),
		Type:     StepType(typ),
		Input:    obj["input"],
		Output:   obj["output"],
		Metadata: metadata,
		Hash:     string(hash),
	}, nil
}

// RecomputeHash recomputes s.Hash from its current fields, ignoring any
// stored value, per §4.2's "hash is a pure function of type + input +
// output + metadata_hashable".
func RecomputeHash(s Step, opts canon.Options) (string, error) {
	return hashsign.StepHash(string(s.Type), orNull(s.Input), orNull(s.Output), s.Metadata, opts)
}

func runToCanon(r Run) canon.Object {
	steps := make(canon.Array, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = stepToCanon(s)
	}
	return canon.Object{
		"id":                      canon.String(r.ID),
		"timestamp":               canon.String(r.Timestamp.UTC().Format(time.RFC3339Nano)),
		"environment_fingerprint": stringMapToCanon(r.EnvironmentFingerprint),
		"runtime_versions":        stringMapToCanon(r.RuntimeVersions),
		"steps":                   steps,
	}
}

func stringMapToCanon(m map[string]string) canon.Object {
	obj := make(canon.Object, len(m))
	for k, v := range m {
		obj[k] = canon.String(v)
	}
	return obj
}

func runFromCanon(v canon.Value) (Run, error) {
	obj, ok := v.(canon.Object)
	if !ok {
		return Run{}, rkerr.New(rkerr.KindInvalidJSON, "run_not_object", "run is not a JSON object")
	}
	id, _ := obj["id"].(canon.String)
	tsRaw, _ := obj["timestamp"].(canon.String)
	ts, err := time.Parse(time.RFC3339Nano, string(tsRaw))
	if err != nil {
		ts, err = time.Parse(time.RFC3339, string(tsRaw))
		if err != nil {
			return Run{}, rkerr.Wrap(rkerr.KindInvalidJSON, "bad_run_timestamp", "run timestamp is not a valid ISO-8601 value", err)
		}
	}
	envFp := canonObjectToStringMap(obj["environment_fingerprint"])
	runtimeVersions := canonObjectToStringMap(obj["runtime_versions"])

	stepsVal, _ := obj["steps"].(canon.Array)
	steps := make([]Step, len(stepsVal))
	for i, sv := range stepsVal {
		s, err := stepFromCanon(sv)
		if err != nil {
			return Run{}, fmt.Errorf("step[%d]: %w", i, err)
		}
		steps[i] = s
	}

	return Run{
		ID:                     string(id),
		Timestamp:              ts,
		EnvironmentFingerprint: envFp,
		RuntimeVersions:        runtimeVersions,
		Steps:                  steps,
	}, nil
}

func canonObjectToStringMap(v canon.Value) map[string]string {
	obj, ok := v.(canon.Object)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(obj))
	for k, elem := range obj {
		if s, ok := elem.(canon.String); ok {
			out[k] = string(s)
		}
	}
	return out
}

// metadataToCanon builds an envelope's top-level metadata mapping,
// ensuring run_id and created_at are always present per §3.
func metadataToCanon(runID string, createdAt time.Time, extra map[string]any) (canon.Object, error) {
	obj := canon.Object{
		"run_id":     canon.String(runID),
		"created_at": canon.String(createdAt.UTC().Format(time.RFC3339Nano)),
	}
	for k, v := range extra {
		cv, err := canon.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("metadata[%q]: %w", k, err)
		}
		obj[k] = cv
	}
	return obj, nil
}
