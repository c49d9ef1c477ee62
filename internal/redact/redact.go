// Package redact implements ReplayKit's redaction engine (§4.4): a
// pure, deterministic masking function applied to a step's input,
// output, and metadata before it ever becomes part of a persisted run.
//
// Unlike a PII-detection pipeline that escalates ambiguous matches to
// an AI verifier, redaction here has no out-of-band oracle: every field
// name and value pattern is resolved by one pass of compiled regexes,
// so identical input always produces identical masked output.
package redact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/replaykit/replaykit/internal/canon"
)

// Masked is the literal value substituted for any redacted leaf (§4.4).
const Masked = "[REDACTED]"

// valuePattern pairs a compiled regex with the name used to describe
// what it matches — mirrors the pack's anonymizer pattern table shape
// (compiled regex + classification), narrowed to drop confidence
// scoring since ReplayKit never escalates a match for further review.
type valuePattern struct {
	name string
	re   *regexp.Regexp
}

// defaultFieldNames is the built-in, case-insensitive field-name
// denylist (§4.4). Policies may only add to this set.
var defaultFieldNames = []string{
	"authorization",
	"proxy-authorization",
	"api_key",
	"apikey",
	"x-api-key",
	"token",
	"access_token",
	"refresh_token",
	"password",
	"secret",
	"cookie",
	"set-cookie",
}

// defaultValuePatterns is the built-in value-shape denylist (§4.4).
var defaultValuePatterns = []valuePattern{
	{"bearer_token", regexp.MustCompile(`(?i)^bearer\s+[a-zA-Z0-9._\-]{10,}$`)},
	{"provider_prefixed_key", regexp.MustCompile(`(?i)^(sk|pk|api|key|ak|rk)[-_][a-zA-Z0-9]{16,}$`)},
	{"high_entropy_hex", regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)},
	{"high_entropy_base64", regexp.MustCompile(`^[A-Za-z0-9+/]{32,}={0,2}$`)},
	{"email", regexp.MustCompile(`(?i)[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
}

// Policy is the additive redaction policy (§3, §4.4). Extra* entries
// only ever add to the built-in defaults above.
type Policy struct {
	Version                    string
	ExtraSensitiveFieldNames   []string
	ExtraSecretValuePatterns   []string
	ExtraSensitivePathPatterns []string
}

// Compiled is a Policy with its regex sets compiled once, reused across
// every step a capture scope redacts.
type Compiled struct {
	version       string
	fieldNames    map[string]bool
	valuePatterns []valuePattern
	pathPatterns  []*regexp.Regexp
}

// Compile builds a Compiled redactor from a Policy, merging its
// additions with the built-in defaults. An empty Policy compiles to
// exactly the defaults.
func Compile(p Policy) (*Compiled, error) {
	fields := make(map[string]bool, len(defaultFieldNames)+len(p.ExtraSensitiveFieldNames))
	for _, f := range defaultFieldNames {
		fields[strings.ToLower(f)] = true
	}
	for _, f := range p.ExtraSensitiveFieldNames {
		fields[strings.ToLower(f)] = true
	}

	patterns := make([]valuePattern, len(defaultValuePatterns))
	copy(patterns, defaultValuePatterns)
	for i, expr := range p.ExtraSecretValuePatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, valuePattern{name: extraPatternName(i), re: re})
	}

	var pathPatterns []*regexp.Regexp
	for _, expr := range p.ExtraSensitivePathPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		pathPatterns = append(pathPatterns, re)
	}

	return &Compiled{
		version:       p.Version,
		fieldNames:    fields,
		valuePatterns: patterns,
		pathPatterns:  pathPatterns,
	}, nil
}

func extraPatternName(i int) string {
	return fmt.Sprintf("extra_%d", i)
}

// Version returns the policy version string persisted alongside the
// run for audit (§4.4).
func (c *Compiled) Version() string { return c.version }

// Redact returns a deep copy of v with every sensitive field masked by
// name or by path, and every leaf string value matching a secret
// pattern masked by shape. keyPath is the dotted path of object keys
// the value was reached under (array indices are not part of it; empty
// at the root); a field is masked when its dotted path matches one of
// the policy's path patterns, so the top-level call should pass "".
func (c *Compiled) Redact(v canon.Value, keyPath string) canon.Value {
	switch val := v.(type) {
	case canon.Object:
		out := make(canon.Object, len(val))
		for k, elem := range val {
			childPath := k
			if keyPath != "" {
				childPath = keyPath + "." + k
			}
			masked := c.fieldNames[strings.ToLower(k)]
			for _, re := range c.pathPatterns {
				masked = masked || re.MatchString(childPath)
			}
			if masked {
				out[k] = canon.String(Masked)
				continue
			}
			out[k] = c.Redact(elem, childPath)
		}
		return out
	case canon.Array:
		out := make(canon.Array, len(val))
		for i, elem := range val {
			out[i] = c.Redact(elem, keyPath)
		}
		return out
	case canon.String:
		if c.matchesValuePattern(string(val)) {
			return canon.String(Masked)
		}
		return val
	default:
		return v
	}
}

func (c *Compiled) matchesValuePattern(s string) bool {
	for _, p := range c.valuePatterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

// StripHTTPBodies returns body with its content dropped entirely when
// capture_http_bodies is false, per §4.4's "HTTP bodies are omitted
// entirely" rule — distinct from masking, which keeps a placeholder.
func StripHTTPBodies(body canon.Value, captureEnabled bool) canon.Value {
	if captureEnabled {
		return body
	}
	return canon.Null{}
}
