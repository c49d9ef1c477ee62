package replay

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/replaykit/replaykit/internal/rkerr"
)

// networkGuardActive is a process-wide flag: while true, DialContext
// (and anything built on it) refuses every outbound connection attempt.
// §4.6 calls for a guard that "intercepts all attempts to open outbound
// network sockets"; a real socket-level intercept is OS/syscall-specific
// and out of scope for a portable core, so the guard is installed at
// the one chokepoint all of this module's own networking code (and any
// embedder that honors it) is expected to go through: DialContext.
var networkGuardActive atomic.Bool

var networkGuardMu sync.Mutex

// GuardedDialContext is a context.Context-compatible dial function that
// fails immediately while the replay network guard is installed.
// Embedding code that performs outbound HTTP/model calls should route
// their transport's DialContext through this so replay can genuinely
// never reach the network.
func GuardedDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if networkGuardActive.Load() {
		return nil, rkerr.New(rkerr.KindNetworkAttemptBlocked, "network_attempt_blocked", "outbound connection attempted during replay").
			WithDetails(map[string]any{"network": network, "addr": addr})
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// InstallNetworkGuard activates the process-wide deny guard and returns
// a release function. Installation and teardown are paired: callers
// must defer the release immediately, on every exit path, per §5's
// "installation and teardown are paired ... including exceptional
// ones".
func InstallNetworkGuard() (release func()) {
	networkGuardMu.Lock()
	networkGuardActive.Store(true)
	return func() {
		networkGuardActive.Store(false)
		networkGuardMu.Unlock()
	}
}

// NetworkGuardTripped reports whether the guard is currently installed
// — embedding code that performs its own dialing can check this before
// attempting a connection and fail the same way the guarded dialer
// would.
func NetworkGuardTripped() bool {
	return networkGuardActive.Load()
}

// CheckNetworkGuard returns a network_attempt_blocked error if the
// guard is active, nil otherwise. Call this immediately before any
// outbound call a replay path might otherwise make.
func CheckNetworkGuard() error {
	if networkGuardActive.Load() {
		return rkerr.New(rkerr.KindNetworkAttemptBlocked, "network_attempt_blocked", "outbound connection attempted during replay")
	}
	return nil
}
