package artifact

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/replaykit/replaykit/internal/canon"
	"github.com/replaykit/replaykit/internal/hashsign"
	"github.com/replaykit/replaykit/internal/rkerr"
)

//go:embed schemas/rpk-1.0.schema.json
var schema10JSON []byte

var schema10 *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://replaykit.local/schemas/rpk-1.0.schema.json"
	if err := c.AddResource(url, bytes.NewReader(schema10JSON)); err != nil {
		panic(fmt.Sprintf("artifact: embedded schema is malformed: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("artifact: embedded schema failed to compile: %v", err))
	}
	schema10 = compiled
}

// schemaFor returns the compiled schema for an envelope's major version,
// or a typed error if the major is not one this build knows how to read.
// Schemas are addressable by (major, minor); only minor additions are
// forward-compatible within a major (§4.3).
func schemaFor(version string) (*jsonschema.Schema, error) {
	major, _, ok := splitVersion(version)
	if !ok {
		return nil, rkerr.New(rkerr.KindInvalidJSON, "malformed_version", fmt.Sprintf("version %q is not MAJOR.MINOR", version))
	}
	if major != "1" {
		return nil, rkerr.New(rkerr.KindUnsupportedVersion, "unsupported_major", fmt.Sprintf("major version %q is not supported; migrate first", major)).
			WithDetails(map[string]any{"version": version})
	}
	return schema10, nil
}

// wrapDecodeError tags a canon.DecodeStrict failure with the right
// rkerr.Kind: a repeated object key is the dedicated duplicate_key
// structural error (§4.1/§7); anything else is an ordinary JSON syntax
// failure.
func wrapDecodeError(err error) error {
	var dup *canon.DuplicateKeyError
	if errors.As(err, &dup) && dup.Duplicate() {
		return rkerr.New(rkerr.KindDuplicateKey, "duplicate_key", dup.Error()).
			WithDetails(map[string]any{"key": dup.Key})
	}
	return rkerr.Wrap(rkerr.KindInvalidJSON, "invalid_json", "artifact is not valid JSON", err)
}

func splitVersion(version string) (major, minor string, ok bool) {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// WriteOptions controls optional signing at write time.
type WriteOptions struct {
	SignKey   []byte
	SignKeyID string
}

// Write builds a checksummed (and optionally signed) envelope for run
// and atomically replaces path's contents with it, per §4.3's write
// path: build envelope → checksum → optional sign → canonical JSON →
// atomic replace (temp sibling + fsync + rename).
//
// created_at is derived from run.Timestamp rather than wall-clock time:
// run.Timestamp is itself deterministic whenever its producer is (capture
// under a fixed environment, or replay under cfg.FixedClock per §4.6), so
// two writes of the same run produce the same metadata, the same
// checksum, and therefore byte-identical output.
func Write(path string, run Run, extraMetadata map[string]any, opts WriteOptions, canonOpts canon.Options) (*Envelope, error) {
	metadata, err := metadataToCanon(run.ID, run.Timestamp, extraMetadata)
	if err != nil {
		return nil, err
	}
	payload := canon.Object{"run": runToCanon(run)}

	checksum, err := hashsign.ArtifactChecksum(CurrentVersion, metadata, payload, canonOpts)
	if err != nil {
		return nil, fmt.Errorf("artifact: computing checksum: %w", err)
	}

	env := canon.Object{
		"version":  canon.String(CurrentVersion),
		"metadata": metadata,
		"payload":  payload,
		"checksum": canon.String(checksum),
	}

	var sig *Signature
	if len(opts.SignKey) > 0 {
		value, err := hashsign.Sign(opts.SignKey, CurrentVersion, metadata, payload, checksum, canonOpts)
		if err != nil {
			return nil, fmt.Errorf("artifact: signing: %w", err)
		}
		sig = &Signature{Algorithm: "hmac-sha256", KeyID: opts.SignKeyID, Value: value}
		env["signature"] = canon.Object{
			"algorithm": canon.String(sig.Algorithm),
			"key_id":    canon.String(sig.KeyID),
			"value":     canon.String(sig.Value),
		}
	}

	bytesOut, err := canon.Canonicalize(env, canonOpts)
	if err != nil {
		return nil, fmt.Errorf("artifact: canonicalizing envelope: %w", err)
	}
	if err := writeAtomic(path, bytesOut); err != nil {
		return nil, fmt.Errorf("artifact: atomic write: %w", err)
	}

	return &Envelope{
		Version:   CurrentVersion,
		Metadata:  canon.ToAny(metadata).(map[string]any),
		Run:       run,
		Checksum:  checksum,
		Signature: sig,
	}, nil
}

// writeAtomic writes data to a temp sibling of path, fsyncs it, and
// renames it over path — grounded on the pack's writeJSONAtomic helper
// (kubekattle-ktl), adapted to write pre-serialized canonical bytes
// instead of calling json.Encoder itself.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadOptions controls optional signature verification at read time.
type ReadOptions struct {
	VerifyKey       []byte // non-nil: verify signature if present
	RequireSignature bool  // fail if no signature is present
}

// Read parses, schema-validates, and checksum-verifies the artifact at
// path, per §4.3/§4.2's verification order: schema shape → checksum →
// signature (if present or requested).
func Read(path string, opts ReadOptions, canonOpts canon.Options) (*Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading %s: %w", path, err)
	}

	generic, err := canon.DecodeStrict(raw)
	if err != nil {
		return nil, wrapDecodeError(err)
	}

	genericMap, ok := generic.(map[string]any)
	if !ok {
		return nil, rkerr.New(rkerr.KindInvalidJSON, "not_an_object", "artifact root is not a JSON object")
	}
	versionRaw, _ := genericMap["version"].(string)

	sch, err := schemaFor(versionRaw)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(generic); err != nil {
		return nil, rkerr.Wrap(rkerr.KindSchemaViolation, "schema_violation", "artifact failed schema validation", err)
	}

	cv, err := canon.FromAny(generic)
	if err != nil {
		return nil, rkerr.Wrap(rkerr.KindInvalidJSON, "invalid_value_domain", "artifact contains an unsupported JSON value", err)
	}
	obj := cv.(canon.Object)

	metadata, _ := obj["metadata"].(canon.Object)
	payload, _ := obj["payload"].(canon.Object)
	checksum, _ := obj["checksum"].(canon.String)

	computed, err := hashsign.ArtifactChecksum(versionRaw, metadata, payload, canonOpts)
	if err != nil {
		return nil, fmt.Errorf("artifact: recomputing checksum: %w", err)
	}
	if computed != string(checksum) {
		return nil, rkerr.New(rkerr.KindChecksumMismatch, "checksum_mismatch", "artifact checksum does not match its contents").
			WithDetails(map[string]any{"expected": string(checksum), "computed": computed})
	}

	var sig *Signature
	if sigObj, ok := obj["signature"].(canon.Object); ok {
		algo, _ := sigObj["algorithm"].(canon.String)
		keyID, _ := sigObj["key_id"].(canon.String)
		value, _ := sigObj["value"].(canon.String)
		if algo != "hmac-sha256" {
			return nil, rkerr.New(rkerr.KindUnsupportedSignatureAlgo, "unsupported_signature_algorithm", fmt.Sprintf("unsupported signature algorithm %q", algo))
		}
		sig = &Signature{Algorithm: string(algo), KeyID: string(keyID), Value: string(value)}
		if opts.VerifyKey != nil {
			ok, err := hashsign.Verify(opts.VerifyKey, versionRaw, metadata, payload, string(checksum), sig.Value, canonOpts)
			if err != nil {
				return nil, fmt.Errorf("artifact: verifying signature: %w", err)
			}
			if !ok {
				return nil, rkerr.New(rkerr.KindSignatureMismatch, "signature_mismatch", "artifact signature does not verify against the supplied key")
			}
		}
	} else if opts.RequireSignature {
		return nil, rkerr.New(rkerr.KindSignatureMissing, "signature_missing", "artifact has no signature but one was required")
	}

	runVal, ok := payload["run"]
	if !ok {
		return nil, rkerr.New(rkerr.KindMalformedPayload, "missing_run", "artifact payload has no run")
	}
	run, err := runFromCanon(runVal)
	if err != nil {
		return nil, rkerr.Wrap(rkerr.KindMalformedPayload, "malformed_run", "artifact run payload is malformed", err)
	}

	return &Envelope{
		Version:   versionRaw,
		Metadata:  canon.ToAny(metadata).(map[string]any),
		Run:       run,
		Checksum:  string(checksum),
		Signature: sig,
	}, nil
}
