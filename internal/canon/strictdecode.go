package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeStrict parses raw as a single JSON value the way encoding/json's
// Decode(&any{}) does (objects become map[string]any, numbers become
// json.Number), but additionally rejects any object carrying a repeated
// key at any nesting depth, per §4.1's "duplicate keys are rejected".
// encoding/json.Unmarshal has no such check: two decodes of the same
// object key silently keep the last value, so an on-disk artifact with
// duplicate keys would otherwise be accepted rather than flagged. Callers
// that need the constrained Value domain should pass the result to
// FromAny.
func DecodeStrict(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	val, err := decodeStrictValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DuplicateKeyError{duplicate: false, message: "trailing data after JSON value"}
	}
	return val, nil
}

// DuplicateKeyError is returned by DecodeStrict when a repeated object
// key is found, or (with Duplicate false) for other strict-parse
// failures the caller may want to distinguish from a plain syntax error.
type DuplicateKeyError struct {
	duplicate bool
	Key       string
	message   string
}

func (e *DuplicateKeyError) Error() string {
	if e.duplicate {
		return fmt.Sprintf("duplicate key %q", e.Key)
	}
	return e.message
}

// Duplicate reports whether err is a DecodeStrict failure caused
// specifically by a repeated object key (as opposed to a syntax error).
func (e *DuplicateKeyError) Duplicate() bool { return e.duplicate }

func decodeStrictValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeStrictObject(dec)
		case '[':
			return decodeStrictArray(dec)
		default:
			return nil, fmt.Errorf("canon: unexpected JSON token %q", t)
		}
	default:
		return tok, nil
	}
}

func decodeStrictObject(dec *json.Decoder) (any, error) {
	obj := make(map[string]any)
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("canon: object key is not a string")
		}
		if seen[key] {
			return nil, &DuplicateKeyError{duplicate: true, Key: key}
		}
		seen[key] = true

		val, err := decodeStrictValue(dec)
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, err
	}
	return obj, nil
}

func decodeStrictArray(dec *json.Decoder) (any, error) {
	arr := make([]any, 0)
	for dec.More() {
		val, err := decodeStrictValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, err
	}
	return arr, nil
}
