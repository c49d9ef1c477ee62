// Package diff implements ReplayKit's diff engine (§4.7): a single
// linear pass over two runs' step sequences, classifying each index and
// computing field-level deltas for steps that changed.
//
// The index-aligned comparison loop is grounded on the teacher's
// compareEventSequences/eventsEqual pair (cli/replay.go) — same
// length-then-per-index-equality shape, generalized from a flat
// reflect.DeepEqual per event to a recursive canonical-value delta walk
// so mismatches are explained, not just detected.
package diff

import (
	"fmt"
	"sort"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/hashsign"
)

// Status is a per-index classification (§4.7).
type Status string

const (
	StatusIdentical    Status = "identical"
	StatusMissingRight Status = "missing_right"
	StatusMissingLeft  Status = "missing_left"
	StatusChanged      Status = "changed"
)

// DeltaKind classifies one field-level change.
type DeltaKind string

const (
	DeltaAdded    DeltaKind = "added"
	DeltaRemoved  DeltaKind = "removed"
	DeltaReplaced DeltaKind = "replaced"
)

// Delta is one field-level change within a changed step.
type Delta struct {
	Path   string // JSON pointer rooted at /input, /output, or /metadata
	Kind   DeltaKind
	Before any
	After  any
}

// Context carries the high-signal fields §4.7 extracts for
// human-readable output, when present in a step's metadata.
type Context struct {
	Model       string
	Provider    string
	Tool        string
	Method      string
	URL         string
	Temperature *float64
	MaxTokens   *int64
}

// Entry is one index's comparison result.
type Entry struct {
	Index        int
	Status       Status
	LeftStep     *artifact.Step
	RightStep    *artifact.Step
	Deltas       []Delta
	Overflowed   bool
	ContextLeft  Context
	ContextRight Context
}

// Options controls the comparison.
type Options struct {
	Strict            bool // include denylisted metadata keys in deltas
	MaxChangesPerStep int  // 0 means unlimited
	FirstDivergence   bool // stop scanning after the first non-identical entry
	CanonOpts         canon.Options
}

// Result is the full diff output (§4.7).
type Result struct {
	Entries         []Entry
	FirstDivergence *int // index, nil if none
}

// DiffRuns performs the O(n) per-index comparison described in §4.7.
func DiffRuns(left, right artifact.Run, opts Options) Result {
	n := len(left.Steps)
	if len(right.Steps) > n {
		n = len(right.Steps)
	}

	var entries []Entry
	var firstDivergence *int

	for i := 0; i < n; i++ {
		var l, r *artifact.Step
		if i < len(left.Steps) {
			l = &left.Steps[i]
		}
		if i < len(right.Steps) {
			r = &right.Steps[i]
		}

		entry := compareIndex(i, l, r, opts)
		entries = append(entries, entry)

		if entry.Status != StatusIdentical && firstDivergence == nil {
			idx := i
			firstDivergence = &idx
			if opts.FirstDivergence {
				break
			}
		}
	}

	return Result{Entries: entries, FirstDivergence: firstDivergence}
}

func compareIndex(i int, l, r *artifact.Step, opts Options) Entry {
	entry := Entry{Index: i, LeftStep: l, RightStep: r}

	switch {
	case l == nil:
		entry.Status = StatusMissingLeft
		entry.ContextRight = extractContext(r.Metadata)
		return entry
	case r == nil:
		entry.Status = StatusMissingRight
		entry.ContextLeft = extractContext(l.Metadata)
		return entry
	}

	entry.ContextLeft = extractContext(l.Metadata)
	entry.ContextRight = extractContext(r.Metadata)

	if l.Type == r.Type && l.Hash == r.Hash {
		entry.Status = StatusIdentical
		return entry
	}

	entry.Status = StatusChanged
	deltas, overflowed := computeDeltas(l, r, opts)
	entry.Deltas = deltas
	entry.Overflowed = overflowed
	return entry
}

func computeDeltas(l, r *artifact.Step, opts Options) ([]Delta, bool) {
	var deltas []Delta

	if l.Type != r.Type {
		deltas = append(deltas, Delta{Path: "/type", Kind: DeltaReplaced, Before: string(l.Type), After: string(r.Type)})
	}

	deltas = append(deltas, diffValue("/input", l.Input, r.Input)...)
	deltas = append(deltas, diffValue("/output", l.Output, r.Output)...)

	lMeta, rMeta := l.Metadata, r.Metadata
	if !opts.Strict {
		lMeta = hashsign.StripVolatile(orEmpty(lMeta))
		rMeta = hashsign.StripVolatile(orEmpty(rMeta))
	}
	deltas = append(deltas, diffValue("/metadata", lMeta, rMeta)...)

	if opts.MaxChangesPerStep > 0 && len(deltas) > opts.MaxChangesPerStep {
		return deltas[:opts.MaxChangesPerStep], true
	}
	return deltas, false
}

func orEmpty(o canon.Object) canon.Object {
	if o == nil {
		return canon.Object{}
	}
	return o
}

// diffValue recursively compares two canonical values, emitting deltas
// at the leaves and for structural shape changes, in canonical
// traversal order (sorted object keys, array index order) so output
// ordering is itself deterministic.
func diffValue(path string, l, r canon.Value) []Delta {
	if canonEqual(l, r) {
		return nil
	}

	lo, lIsObj := l.(canon.Object)
	ro, rIsObj := r.(canon.Object)
	if lIsObj && rIsObj {
		return diffObjects(path, lo, ro)
	}

	la, lIsArr := l.(canon.Array)
	ra, rIsArr := r.(canon.Array)
	if lIsArr && rIsArr {
		return diffArrays(path, la, ra)
	}

	return []Delta{{Path: path, Kind: kindFor(l, r), Before: canon.ToAny(l), After: canon.ToAny(r)}}
}

func kindFor(l, r canon.Value) DeltaKind {
	switch {
	case isAbsent(l):
		return DeltaAdded
	case isAbsent(r):
		return DeltaRemoved
	default:
		return DeltaReplaced
	}
}

func isAbsent(v canon.Value) bool {
	if v == nil {
		return true
	}
	_, isNull := v.(canon.Null)
	return isNull
}

func diffObjects(path string, l, r canon.Object) []Delta {
	keys := unionKeys(l, r)
	var deltas []Delta
	for _, k := range keys {
		lv, lok := l[k]
		rv, rok := r[k]
		childPath := path + "/" + k
		switch {
		case !lok:
			deltas = append(deltas, Delta{Path: childPath, Kind: DeltaAdded, Before: nil, After: canon.ToAny(rv)})
		case !rok:
			deltas = append(deltas, Delta{Path: childPath, Kind: DeltaRemoved, Before: canon.ToAny(lv), After: nil})
		default:
			deltas = append(deltas, diffValue(childPath, lv, rv)...)
		}
	}
	return deltas
}

func unionKeys(l, r canon.Object) []string {
	seen := make(map[string]bool, len(l)+len(r))
	for k := range l {
		seen[k] = true
	}
	for k := range r {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func diffArrays(path string, l, r canon.Array) []Delta {
	var deltas []Delta
	n := len(l)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		childPath := fmt.Sprintf("%s/%d", path, i)
		switch {
		case i >= len(l):
			deltas = append(deltas, Delta{Path: childPath, Kind: DeltaAdded, Before: nil, After: canon.ToAny(r[i])})
		case i >= len(r):
			deltas = append(deltas, Delta{Path: childPath, Kind: DeltaRemoved, Before: canon.ToAny(l[i]), After: nil})
		default:
			deltas = append(deltas, diffValue(childPath, l[i], r[i])...)
		}
	}
	return deltas
}

func canonEqual(l, r canon.Value) bool {
	lb, lerr := canon.Canonicalize(orNullValue(l), canon.Options{})
	rb, rerr := canon.Canonicalize(orNullValue(r), canon.Options{})
	if lerr != nil || rerr != nil {
		return false
	}
	return string(lb) == string(rb)
}

func orNullValue(v canon.Value) canon.Value {
	if v == nil {
		return canon.Null{}
	}
	return v
}

func extractContext(metadata canon.Object) Context {
	var ctx Context
	if metadata == nil {
		return ctx
	}
	if s, ok := metadata["model"].(canon.String); ok {
		ctx.Model = string(s)
	}
	if s, ok := metadata["provider"].(canon.String); ok {
		ctx.Provider = string(s)
	}
	if s, ok := metadata["tool"].(canon.String); ok {
		ctx.Tool = string(s)
	}
	if s, ok := metadata["method"].(canon.String); ok {
		ctx.Method = string(s)
	}
	if s, ok := metadata["url"].(canon.String); ok {
		ctx.URL = string(s)
	}
	if n, ok := metadata["temperature"].(canon.Number); ok {
		f := numberToFloat(n)
		ctx.Temperature = &f
	}
	if n, ok := metadata["max_tokens"].(canon.Number); ok {
		i := numberToInt(n)
		ctx.MaxTokens = &i
	}
	return ctx
}

func numberToFloat(n canon.Number) float64 {
	if n.IsInt {
		return float64(n.Int)
	}
	return n.Float
}

func numberToInt(n canon.Number) int64 {
	if n.IsInt {
		return n.Int
	}
	return int64(n.Float)
}
