// Package assertsnap implements ReplayKit's assert and named-snapshot
// layer (§4.8): pass/fail semantics over internal/diff, strict-mode
// environment/drift checks, a slowdown gate, and a SQLite-backed named
// baseline store.
package assertsnap

import (
	"fmt"
	"reflect"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/diff"
	"github.com/replaykit/replaykit/internal/hashsign"
)

// Status is the outcome of an assertion (§4.8).
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// PerformanceStatus classifies the slowdown gate's outcome.
type PerformanceStatus string

const (
	PerformanceOK             PerformanceStatus = "ok"
	PerformanceSlowdown       PerformanceStatus = "slowdown"
	PerformanceMissingMetrics PerformanceStatus = "missing_metrics"
)

// Options controls AssertRun (§4.8).
type Options struct {
	Strict               bool
	SlowdownThresholdPct float64 // 0 disables the gate
	MaxChangesPerStep    int
	CanonOpts            canon.Options
}

// Result is the full assertion outcome.
type Result struct {
	Status          Status
	Diff            diff.Result
	EnvironmentDrift []string // non-empty only under Strict
	Performance     PerformanceReport
}

// PerformanceReport is the slowdown gate's outcome (§4.8).
type PerformanceReport struct {
	Status          PerformanceStatus
	AggregateRatio  float64
	MetricKeyUsed   string
	PerStepRatios   map[string]float64
}

// AssertRun asserts candidate against baseline (§4.8): pass iff there
// is no divergence under the selected rules.
func AssertRun(baseline, candidate artifact.Run, opts Options) Result {
	diffOpts := diff.Options{
		Strict:            opts.Strict,
		MaxChangesPerStep: opts.MaxChangesPerStep,
		CanonOpts:         opts.CanonOpts,
	}

	d := diff.DiffRuns(baseline, candidate, diffOpts)

	status := StatusPass
	if d.FirstDivergence != nil {
		status = StatusFail
	}

	var envDrift []string
	if opts.Strict {
		envDrift = environmentDrift(baseline, candidate)
		if len(envDrift) > 0 {
			status = StatusFail
		}
	}

	perf := slowdownGate(baseline, candidate, opts.SlowdownThresholdPct)
	if perf.Status != PerformanceOK {
		status = StatusFail
	}

	return Result{
		Status:           status,
		Diff:             d,
		EnvironmentDrift: envDrift,
		Performance:      perf,
	}
}

// environmentDrift reports mismatches in environment_fingerprint or
// runtime_versions between baseline and candidate — Strict mode only
// (§4.8).
func environmentDrift(baseline, candidate artifact.Run) []string {
	var drift []string
	if !reflect.DeepEqual(baseline.EnvironmentFingerprint, candidate.EnvironmentFingerprint) {
		drift = append(drift, "environment_fingerprint")
	}
	if !reflect.DeepEqual(baseline.RuntimeVersions, candidate.RuntimeVersions) {
		drift = append(drift, "runtime_versions")
	}
	return drift
}

// slowdownMetricKeys is tried in order; the first key present in a
// step's metadata is the one used for that step's ratio.
var slowdownMetricKeys = []string{"duration_ms", "latency_ms", "wall_time_ms", "elapsed_ms"}

// slowdownGate computes the candidate/baseline ratio per step for
// whichever timing metric is present, and aggregates (§4.8). A
// threshold of 0 disables the gate.
func slowdownGate(baseline, candidate artifact.Run, thresholdPct float64) PerformanceReport {
	if thresholdPct <= 0 {
		return PerformanceReport{Status: PerformanceOK}
	}

	n := len(baseline.Steps)
	if len(candidate.Steps) < n {
		n = len(candidate.Steps)
	}

	ratios := make(map[string]float64)
	var sum float64
	var count int
	var metricKey string

	for i := 0; i < n; i++ {
		b, c := baseline.Steps[i], candidate.Steps[i]
		key, bVal, ok := firstMetric(b.Metadata)
		if !ok {
			continue
		}
		_, cVal, ok := firstMetric(c.Metadata)
		if !ok {
			continue
		}
		if bVal == 0 {
			continue
		}
		metricKey = key
		ratio := cVal / bVal
		ratios[b.ID] = ratio
		sum += ratio
		count++
	}

	if count == 0 {
		return PerformanceReport{Status: PerformanceMissingMetrics}
	}

	aggregate := sum / float64(count)
	status := PerformanceOK
	if (aggregate-1.0)*100.0 > thresholdPct {
		status = PerformanceSlowdown
	}

	return PerformanceReport{
		Status:         status,
		AggregateRatio: aggregate,
		MetricKeyUsed:  metricKey,
		PerStepRatios:  ratios,
	}
}

func firstMetric(metadata canon.Object) (string, float64, bool) {
	for _, k := range slowdownMetricKeys {
		if v, ok := metadata[k]; ok {
			if n, ok := v.(canon.Number); ok {
				if n.IsInt {
					return k, float64(n.Int), true
				}
				return k, n.Float, true
			}
		}
	}
	return "", 0, false
}

// VerifyStepHashes recomputes every step's hash from its canonical
// content, independent of the diff pass, and counts how many stored
// hashes match (preserved) versus differ (recomputed). The migration
// layer does its own recomputation through artifact.RecomputeHash.
func VerifyStepHashes(run artifact.Run, canonOpts canon.Options) (preserved, recomputed int, err error) {
	for _, step := range run.Steps {
		computed, herr := hashsign.StepHash(string(step.Type), orNull(step.Input), orNull(step.Output), step.Metadata, canonOpts)
		if herr != nil {
			return preserved, recomputed, fmt.Errorf("assertsnap: recomputing hash for %s: %w", step.ID, herr)
		}
		if computed == step.Hash {
			preserved++
		} else {
			recomputed++
		}
	}
	return preserved, recomputed, nil
}

func orNull(v canon.Value) canon.Value {
	if v == nil {
		return canon.Null{}
	}
	return v
}
