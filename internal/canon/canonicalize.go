package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Options controls context-dependent normalization. PathKeys and
// TimestampKeys name the mapping keys (at any depth) whose string values
// should be treated as path-shaped or timestamp-shaped per §4.1. Callers
// that have no such keys may pass a zero Options.
type Options struct {
	PathKeys      map[string]bool
	TimestampKeys map[string]bool
}

// utf8Validator rejects malformed UTF-8 byte sequences. It is used only
// to validate well-formedness, never to transform or re-normalize valid
// text — ReplayKit's canonical form explicitly preserves Unicode as-is.
var utf8Validator = unicode.UTF8.NewDecoder()

// Canonicalize produces the canonical byte representation of v per §4.1.
// It is total on accepted inputs and deterministic: Canonicalize(x) ==
// Canonicalize(y) iff x and y are value-equal after the rules in §4.1.
func Canonicalize(v Value, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, opts, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encode writes the canonical encoding of v to buf. ctxKey is the
// mapping key v was reached under (empty at the root or inside arrays),
// used to decide whether a string value is path- or timestamp-shaped.
func encode(buf *bytes.Buffer, v Value, opts Options, ctxKey string) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Number:
		return encodeNumber(buf, val)
	case String:
		return encodeString(buf, string(val), opts, ctxKey)
	case Array:
		return encodeArray(buf, val, opts)
	case Object:
		return encodeObject(buf, val, opts)
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
}

func encodeNumber(buf *bytes.Buffer, n Number) error {
	if n.IsInt {
		buf.WriteString(strconv.FormatInt(n.Int, 10))
		return nil
	}
	if math.IsNaN(n.Float) || math.IsInf(n.Float, 0) {
		return fmt.Errorf("canon: non-finite number is forbidden")
	}
	// strconv's shortest round-trip formatter (Ryu-derived) is
	// deterministic across platforms and Go versions; no separate
	// vendored float algorithm is needed (see DESIGN.md Open Question 2).
	buf.WriteString(strconv.FormatFloat(n.Float, 'g', -1, 64))
	return nil
}

func encodeString(buf *bytes.Buffer, s string, opts Options, ctxKey string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("canon: invalid UTF-8 in string value")
	}
	if _, err := utf8Validator.String(s); err != nil {
		return fmt.Errorf("canon: malformed UTF-8: %w", err)
	}

	normalized := normalizeNewlines(s)

	if opts.PathKeys[ctxKey] {
		normalized = normalizePath(normalized)
	} else if opts.TimestampKeys[ctxKey] {
		normalized = normalizeTimestamp(normalized)
	}

	return encodeJSONString(buf, normalized)
}

// normalizeNewlines collapses CRLF and lone CR into LF, per §4.1.
func normalizeNewlines(s string) string {
	if !strings.ContainsAny(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// normalizePath converts backslashes to forward slashes, collapses
// consecutive separators, and strips a trailing separator (except for
// the root "/").
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// normalizeTimestamp rewrites an ISO-8601 string with an explicit offset
// to UTC with a "Z" suffix and at most millisecond precision. Strings
// that don't parse as an offset-bearing timestamp are left untouched.
func normalizeTimestamp(s string) string {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
	} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		utc := t.UTC()
		ms := utc.Round(time.Millisecond)
		frac := ms.Nanosecond() / int(time.Millisecond)
		if frac == 0 {
			return ms.Format("2006-01-02T15:04:05Z")
		}
		return fmt.Sprintf("%s.%03dZ", ms.Format("2006-01-02T15:04:05"), frac)
	}
	return s
}

// encodeJSONString writes s as a JSON string literal: always
// double-quoted, only control characters/backslash/quote escaped, no
// insignificant whitespace. HTML escaping is disabled so '<', '>', '&'
// pass through literally, matching §4.1's "no key quoting surprises"
// byte-exactness requirement.
func encodeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canon: encoding string: %w", err)
	}
	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}

func encodeArray(buf *bytes.Buffer, arr Array, opts Options) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem, opts, ""); err != nil {
			return fmt.Errorf("canon: array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj Object, opts Options) error {
	buf.WriteByte('{')
	keys := obj.SortedKeys()
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeJSONString(buf, k); err != nil {
			return fmt.Errorf("canon: key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := encode(buf, obj[k], opts, k); err != nil {
			return fmt.Errorf("canon: value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}
