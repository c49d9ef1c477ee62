package capture

import (
	"strings"

	"github.com/replaykit/replaykit/internal/canon"
)

// AssembleStream builds the streaming-response shape §4.5 requires for
// model responses obtained as an ordered sequence of deltas: the
// ordered delta list with 1-based indices, a completion flag, and the
// deterministic concatenation of deltas in observed order.
// assembled_text — not the individual deltas — is what replay and diff
// consume.
func AssembleStream(deltas []string, complete bool) canon.Object {
	events := make(canon.Array, len(deltas))
	var assembled strings.Builder
	for i, d := range deltas {
		events[i] = canon.Object{
			"index": canon.Int(int64(i + 1)),
			"text":  canon.String(d),
		}
		assembled.WriteString(d)
	}
	return canon.Object{
		"output.stream.events": events,
		"complete":             canon.Bool(complete),
		"assembled_text":       canon.String(assembled.String()),
	}
}
