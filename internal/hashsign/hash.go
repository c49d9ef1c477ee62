// Package hashsign implements ReplayKit's content-addressed step hashing
// and artifact checksum/signature contract (§4.2).
package hashsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/replaykit/replaykit/internal/canon"
)

// Prefix is prepended to every digest persisted in an artifact.
const Prefix = "sha256:"

// VolatileMetadataKeys names the metadata keys removed at all depths
// before a step's metadata contributes to its hash. Synchronized between
// write-time hashing here and read-time diff-ignore in internal/diff —
// see DESIGN.md Open Question 1.
var VolatileMetadataKeys = map[string]bool{
	"created_at":   true,
	"wall_time_ms": true,
	"duration_ms":  true,
	"latency_ms":   true,
	"elapsed_ms":   true,
}

// RequestIDVolatileFlag is the metadata key whose presence (with a true
// value) marks a sibling "request_id" key as volatile for this step,
// per §9's "request_id is volatile only when explicitly marked".
const RequestIDVolatileFlag = "request_id_volatile"

// StripVolatile returns a copy of obj with volatile keys removed at
// every depth. request_id is removed only when RequestIDVolatileFlag is
// present and true at the same level.
func StripVolatile(obj canon.Object) canon.Object {
	volatile := make(map[string]bool, len(VolatileMetadataKeys)+1)
	for k := range VolatileMetadataKeys {
		volatile[k] = true
	}
	if flag, ok := obj[RequestIDVolatileFlag]; ok {
		if b, ok := flag.(canon.Bool); ok && bool(b) {
			volatile["request_id"] = true
		}
	}
	return stripKeys(obj, volatile)
}

func stripKeys(obj canon.Object, volatile map[string]bool) canon.Object {
	out := make(canon.Object, len(obj))
	for k, v := range obj {
		if volatile[k] || k == RequestIDVolatileFlag {
			continue
		}
		out[k] = stripValue(v, volatile)
	}
	return out
}

func stripValue(v canon.Value, volatile map[string]bool) canon.Value {
	switch val := v.(type) {
	case canon.Object:
		return stripKeys(val, volatile)
	case canon.Array:
		out := make(canon.Array, len(val))
		for i, elem := range val {
			out[i] = stripValue(elem, volatile)
		}
		return out
	default:
		return v
	}
}

// digest computes SHA-256 over the canonical bytes of v and returns the
// prefixed hex encoding.
func digest(v canon.Value, opts canon.Options) (string, error) {
	b, err := canon.Canonicalize(v, opts)
	if err != nil {
		return "", fmt.Errorf("hashsign: canonicalize: %w", err)
	}
	sum := sha256.Sum256(b)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// StepHash computes the hash of a step per §4.2: SHA-256 over the
// canonical bytes of {type, input, output, metadata_hashable}, where
// metadata_hashable is metadata with the volatile-key denylist removed
// at all depths.
func StepHash(stepType string, input, output canon.Value, metadata canon.Object, opts canon.Options) (string, error) {
	obj := canon.Object{
		"type":     canon.String(stepType),
		"input":    input,
		"output":   output,
		"metadata": StripVolatile(metadata),
	}
	return digest(obj, opts)
}

// ArtifactChecksum computes the checksum of an envelope's {version,
// metadata, payload}, excluding checksum and signature fields.
func ArtifactChecksum(version string, metadata, payload canon.Object, opts canon.Options) (string, error) {
	obj := canon.Object{
		"version":  canon.String(version),
		"metadata": metadata,
		"payload":  payload,
	}
	return digest(obj, opts)
}

// Sign computes an HMAC-SHA-256 signature over {version, metadata,
// payload, checksum} using the given key. The key is supplied by the
// embedding environment and is never itself included in the artifact.
func Sign(key []byte, version string, metadata, payload canon.Object, checksum string, opts canon.Options) (string, error) {
	obj := canon.Object{
		"version":  canon.String(version),
		"metadata": metadata,
		"payload":  payload,
		"checksum": canon.String(checksum),
	}
	b, err := canon.Canonicalize(obj, opts)
	if err != nil {
		return "", fmt.Errorf("hashsign: canonicalize for signing: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether sig is the correct HMAC-SHA-256 signature for
// the given envelope fields and key, using a constant-time comparison.
func Verify(key []byte, version string, metadata, payload canon.Object, checksum, sig string, opts canon.Options) (bool, error) {
	expected, err := Sign(key, version, metadata, payload, checksum, opts)
	if err != nil {
		return false, err
	}
	expectedRaw, err := hex.DecodeString(expected)
	if err != nil {
		return false, err
	}
	actualRaw, err := hex.DecodeString(sig)
	if err != nil {
		return false, fmt.Errorf("hashsign: malformed signature hex: %w", err)
	}
	return hmac.Equal(expectedRaw, actualRaw), nil
}
