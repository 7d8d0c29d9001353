package clock_test

import (
	"math/rand/v2"
	"testing"

	"github.com/sgerwk/timeserver/internal/clock"
	"github.com/stretchr/testify/assert"
)

func newClock(idleJumpSet bool, idleJump int64, busyWait int, noFork bool) *clock.Clock {
	return clock.New(0, idleJumpSet, idleJump, busyWait, noFork, rand.New(rand.NewPCG(1, 1)))
}

func TestSleepWakeupAtOffByOneIsDeliberate(t *testing.T) {
	// scenario 1 of the testable properties: SLEEP(5) issued at now=0 must
	// wake once now reaches 5, not 6 or 4.
	c := newClock(false, 0, 0, false)
	wakeupAt := c.SleepWakeupAt(5)
	assert.Equal(t, int64(4), wakeupAt)

	c.Now = 4
	assert.False(t, wakeupAt < c.Now, "must not be woken yet at now=4")
	c.Now = 5
	assert.True(t, wakeupAt < c.Now, "must be woken once now=5")
}

func TestRunActiveWithNoBound(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.End = -1
	assert.True(t, c.RunActive())
}

func TestExtendRunIsAdditive(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.ExtendRun(10)
	c.ExtendRun(5)
	assert.Equal(t, int64(15), c.End)
}

func TestExtendRunSentinelReplacesEnd(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.End = 30
	c.ExtendRun(clock.NextSleep)
	assert.Equal(t, clock.NextSleep, c.End)
}

func TestEndOnSleepOnlyFiresForSentinel(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.Now = 7
	c.End = 50
	c.EndOnSleep()
	assert.Equal(t, int64(50), c.End, "a fixed end must not be touched")

	c.End = clock.NextSleep
	c.EndOnSleep()
	assert.Equal(t, int64(7), c.End)
}

func TestIdleAdvanceJumpsDirectlyToNextWakeup(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.Now = 0
	c.End = -1
	c.IdleAdvance(true, 4) // scenario 3: wakeup at 4, no_jump configured
	assert.Equal(t, int64(5), c.Now)
}

func TestIdleAdvanceRespectsRunEndOverSleeper(t *testing.T) {
	c := newClock(false, 0, 0, false)
	c.Now = 0
	c.End = 3
	c.IdleAdvance(true, 100)
	assert.Equal(t, int64(3), c.Now)
}

func TestIdleAdvanceNoForkEndsRunWhenNothingCanProgress(t *testing.T) {
	c := newClock(false, 0, 0, true)
	c.Now = 9
	c.End = -1
	c.IdleAdvance(false, 0)
	assert.Equal(t, int64(9), c.End)
}

func TestIdleAdvanceWithFixedJumpClampsToEndAndWakeup(t *testing.T) {
	c := newClock(true, 100, 0, false)
	c.Now = 0
	c.End = 10
	c.IdleAdvance(false, 0)
	assert.Equal(t, int64(10), c.Now, "fixed jump must clamp to end")

	c2 := newClock(true, 100, 0, false)
	c2.Now = 0
	c2.End = -1
	c2.IdleAdvance(true, 4)
	assert.Equal(t, int64(5), c2.Now, "fixed jump must clamp to next wakeup + 1")
}

func TestQueryNeverAdvancesWhenBusyWaitDisabled(t *testing.T) {
	c := newClock(false, 0, 0, false)
	for i := 0; i < 100; i++ {
		c.Query()
	}
	assert.Equal(t, int64(0), c.Now)
}
