// Package clock owns the simulated clock: the current time, the end of the
// active run, and the policies for advancing "now" when clients go idle or
// busy-wait.
//
// It is intended for internal use by timeserver only.
package clock

import (
	"math/rand/v2"

	"github.com/sgerwk/timeserver/internal/wire"
)

// Run-end sentinels, aliased from wire so a RUN payload can be assigned to
// Clock.End without translation. A non-negative End is a fixed target;
// these negative values mean the run's end depends on what clients do next.
const (
	NextSleep = wire.NEXTSLEEP
	NextWake  = wire.NEXTWAKE
)

// Clock holds the simulated time and the operator-controlled policies for
// advancing it. It is owned exclusively by the authority's dispatch loop;
// nothing else may mutate it.
type Clock struct {
	Origin int64 // wall-clock offset added to every client-visible timestamp
	Now    int64 // current simulated time, seconds, monotonically non-decreasing
	End    int64 // upper bound of the current run, or NextSleep/NextWake

	IdleJumpSet bool  // whether -j was given
	IdleJump    int64 // seconds to advance on idle when IdleJumpSet
	BusyWait    int   // 1-in-N chance a QUERY also advances now by one second
	NoFork      bool  // assume clients never fork/exec

	rng *rand.Rand
}

// New creates a Clock starting at Now=0, End=0 (no run active).
func New(origin int64, idleJumpSet bool, idleJump int64, busyWait int, noFork bool, rng *rand.Rand) *Clock {
	return &Clock{
		Origin:      origin,
		IdleJumpSet: idleJumpSet,
		IdleJump:    idleJump,
		BusyWait:    busyWait,
		NoFork:      noFork,
		rng:         rng,
	}
}

// Visible is the timestamp exposed to clients for the current Now.
func (c *Clock) Visible() int64 { return c.Origin + c.Now }

// RunActive reports whether the dispatcher should accept time-affecting
// messages (QUERY/SLEEP/CANCEL) rather than only registration-class ones.
func (c *Clock) RunActive() bool {
	return c.End < 0 || c.Now < c.End
}

// ExtendRun applies a RUN command's payload: a positive duration extends
// the run, while NextSleep/NextWake arm an event-defined end.
func (c *Clock) ExtendRun(payload int64) {
	if payload < 0 {
		c.End = payload
		return
	}
	c.End = c.End + payload
}

// EndOnSleep implements "RUN(NEXTSLEEP) ends on the next SLEEP or
// UNREGISTER": called by the dispatcher whenever one of those occurs.
func (c *Clock) EndOnSleep() {
	if c.End == NextSleep {
		c.End = c.Now
	}
}

// EndAfterWake implements "RUN(NEXTWAKE) ends just after the next wakeup":
// called by the scheduler once it has dispatched a wake.
func (c *Clock) EndAfterWake() {
	if c.End == NextWake {
		c.End = c.Now + 1
	}
}

// Query advances now by one second with probability 1/BusyWait (disabled
// when BusyWait is 0), the nudge that keeps a tight `while(time()<deadline)`
// busy-wait loop from spinning forever against a clock that never moves.
func (c *Clock) Query() {
	if c.BusyWait > 0 && c.rng.IntN(c.BusyWait) == 0 {
		c.Now++
	}
}

// SleepWakeupAt computes the wakeup time for a SLEEP(d) issued at the
// current Now: the client wakes once Now exceeds this value, i.e. after at
// least d seconds have elapsed. The off-by-one (d-1) is deliberate, not a
// bug: it is what turns the strict "wakeup_at < now" wake condition into
// "wakes after exactly d advancements".
func (c *Clock) SleepWakeupAt(d int64) int64 {
	return c.Now + d - 1
}

// IdleAdvance implements the TIMEOUT policy: it decides how far to jump
// Now when no client has sent a message within the idle window.
// nextWakeup/hasSleeper describe the earliest scheduled wakeup, if any.
func (c *Clock) IdleAdvance(hasSleeper bool, nextWakeup int64) {
	switch {
	case c.IdleJumpSet:
		c.Now += c.IdleJump
		if c.End >= 0 && c.Now >= c.End {
			c.Now = c.End
		}
		if hasSleeper && c.Now > nextWakeup+1 {
			c.Now = nextWakeup + 1
		}
	case hasSleeper && (c.End < 0 || nextWakeup < c.End):
		c.Now = nextWakeup + 1
	case c.End >= 0:
		c.Now = c.End
	case c.NoFork:
		c.End = c.Now
	}
}
