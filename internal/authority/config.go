package authority

import "time"

// Config holds everything the authority needs to start a run: the same
// knobs the original -t/-i/-j/-b/-f flags controlled.
type Config struct {
	// SocketPath is where the message bus listens. Clients and the run
	// driver must agree on this path byte-for-byte.
	SocketPath string

	// Origin is the wall-clock offset added to every client-visible
	// timestamp. Zero means "emit raw simulation seconds".
	Origin int64

	// IdleTime is how long the dispatcher waits for a client message
	// before synthesizing a TIMEOUT.
	IdleTime time.Duration

	// IdleJumpSet and IdleJump implement -j: when set, an idle TIMEOUT
	// advances Now by IdleJump seconds instead of jumping straight to
	// the next scheduled wakeup.
	IdleJumpSet bool
	IdleJump    int64

	// BusyWait is the 1-in-N chance a QUERY also advances Now by one
	// second. Zero disables the nudge.
	BusyWait int

	// NoFork enables the fast path that assumes clients never fork or
	// exec: when every registered client is asleep, the dispatcher
	// synthesizes a TIMEOUT immediately instead of waiting idly.
	NoFork bool

	// Capacity is the fixed size of the client registry.
	Capacity int
}

// DefaultIdleTime matches the original authority's default of 50ms.
const DefaultIdleTime = 50 * time.Millisecond

// DefaultBusyWait matches the original default of 1-in-2.
const DefaultBusyWait = 2

// DefaultCapacity matches MAXCLIENTS from the wire contract.
const DefaultCapacity = 200
