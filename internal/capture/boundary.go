package capture

import (
	"strings"

	"golang.org/x/net/idna"

	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/rkerr"
)

// BoundaryKind identifies which allow bit and host rules a call
// crosses, per §4.5's four recording operations.
type BoundaryKind string

const (
	BoundaryModel BoundaryKind = "model"
	BoundaryTool  BoundaryKind = "tool"
	BoundaryHTTP  BoundaryKind = "http"
)

// checkBoundary enforces §4.5's policy rules: each boundary checks its
// allow bit; HTTP is additionally filtered by host, allowlist first
// (if non-empty, it wins outright), then denylist.
func checkBoundary(p artifact.InterceptionPolicy, kind BoundaryKind, host string) *rkerr.Error {
	switch kind {
	case BoundaryModel:
		if !p.AllowModel {
			return rkerr.New(rkerr.KindBoundaryDenied, "model_not_allowed", "model boundary is not permitted by the active interception policy")
		}
	case BoundaryTool:
		if !p.AllowTool {
			return rkerr.New(rkerr.KindBoundaryDenied, "tool_not_allowed", "tool boundary is not permitted by the active interception policy")
		}
	case BoundaryHTTP:
		if !p.AllowHTTP {
			return rkerr.New(rkerr.KindBoundaryDenied, "http_not_allowed", "http boundary is not permitted by the active interception policy")
		}
		if host != "" {
			if err := checkHost(p, host); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkHost applies allowed_hosts/blocked_hosts, IDN-normalizing both
// the candidate host and the policy's host lists so that "xn--..." and
// Unicode forms of the same host compare equal.
func checkHost(p artifact.InterceptionPolicy, host string) *rkerr.Error {
	normalized := normalizeHost(host)

	if len(p.AllowedHosts) > 0 {
		for _, h := range p.AllowedHosts {
			if normalizeHost(h) == normalized {
				return nil
			}
		}
		return rkerr.New(rkerr.KindHostBlocked, "host_not_allowlisted", "host is not on the allowed_hosts list").
			WithDetails(map[string]any{"host": normalized})
	}

	for _, h := range p.BlockedHosts {
		if normalizeHost(h) == normalized {
			return rkerr.New(rkerr.KindHostBlocked, "host_blocklisted", "host is on the blocked_hosts list").
				WithDetails(map[string]any{"host": normalized})
		}
	}
	return nil
}

// normalizeHost lower-cases and IDN-encodes host so that "café.example"
// and "xn--caf-dma.example" compare equal. Hosts idna rejects outright
// (bare IP literals, "localhost") are still usable for matching — they
// are simply returned lower-cased rather than punycode-encoded.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}
