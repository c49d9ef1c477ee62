// Package rkerr defines ReplayKit's cross-component error taxonomy
// (§7): a closed set of error kinds, each user-visible failure carrying
// the kind, a stable machine code, a one-line human message, and
// structured details.
package rkerr

import (
	"errors"
	"fmt"
)

// Kind is a tag from the closed taxonomy in §7. It is not an identifier
// a caller constructs freely — only the constants below are valid.
type Kind string

const (
	// Structural
	KindInvalidJSON      Kind = "invalid_json"
	KindSchemaViolation  Kind = "schema_violation"
	KindUnknownMajor     Kind = "unknown_major"
	KindDuplicateKey     Kind = "duplicate_key"
	KindCycle            Kind = "cycle"
	KindNonFiniteNumber  Kind = "non_finite_number"

	// Integrity
	KindChecksumMismatch            Kind = "checksum_mismatch"
	KindSignatureMissing            Kind = "signature_missing"
	KindSignatureMismatch           Kind = "signature_mismatch"
	KindUnsupportedSignatureAlgo    Kind = "unsupported_signature_algorithm"
	KindKeyMissing                  Kind = "key_missing"

	// Policy
	KindBoundaryDenied       Kind = "boundary_denied"
	KindHostBlocked          Kind = "host_blocked"
	KindBodyCaptureDisabled  Kind = "body_capture_disabled"

	// Replay
	KindNetworkAttemptBlocked Kind = "network_attempt_blocked"
	KindHybridAlignmentMismatch Kind = "hybrid_alignment_mismatch"
	KindNondeterminismDetected  Kind = "nondeterminism_detected"

	// Migration
	KindUnsupportedVersion Kind = "unsupported_version"
	KindMalformedPayload   Kind = "malformed_payload"
	KindRecomputeFailed    Kind = "recompute_failed"

	// Diff/assert
	KindDivergenceDetected Kind = "divergence_detected"
	KindDriftDetected      Kind = "drift_detected"
	KindSlowdown           Kind = "slowdown"
	KindMissingMetrics     Kind = "missing_metrics"
)

// Error is the user-visible failure shape described in §7: a tag, a
// stable machine code, a one-line human message, and structured details
// (paths, indices, step ids, ...).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Is reports whether err is an *Error of the given kind, unwrapping
// wrapped errors — generalized from the teacher's Is<Kind>Error helpers
// (e.g. engine.IsCycleError) into a single kind-parameterized predicate.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
