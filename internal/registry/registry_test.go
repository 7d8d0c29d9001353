package registry_test

import (
	"testing"

	"github.com/sgerwk/timeserver/internal/registry"
	"github.com/sgerwk/timeserver/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, capacity int) *registry.Registry {
	t.Helper()
	return registry.New(logger.NewBuffer(), capacity)
}

func TestRegisterAllocatesLowestFreeIndex(t *testing.T) {
	r := newRegistry(t, 4)

	a := r.Register()
	b := r.Register()
	assert.Equal(t, int64(0), a)
	assert.Equal(t, int64(1), b)

	r.Unregister(a)
	c := r.Register()
	assert.Equal(t, int64(0), c, "freed slot should be reused before growing")
}

func TestRegisterFailsWhenFull(t *testing.T) {
	r := newRegistry(t, 2)
	require.NotEqual(t, int64(-1), r.Register())
	require.NotEqual(t, int64(-1), r.Register())
	assert.Equal(t, int64(-1), r.Register())
}

func TestCountersTrackOccupancyAndSleep(t *testing.T) {
	r := newRegistry(t, 4)
	a := r.Register()
	b := r.Register()
	assert.Equal(t, 2, r.NumClients())
	assert.Equal(t, 0, r.NumSleeping())

	r.Sleep(a, 10)
	assert.Equal(t, 1, r.NumSleeping())

	r.Wake(b) // not sleeping, no-op
	assert.Equal(t, 1, r.NumSleeping())

	r.Wake(a)
	assert.Equal(t, 0, r.NumSleeping())
}

func TestWakeIsIdempotentForARunningClient(t *testing.T) {
	r := newRegistry(t, 2)
	a := r.Register()
	assert.False(t, r.Wake(a), "waking a client that was never asleep reports false")
}

func TestNextWakeupPicksEarliestThenLowestIndex(t *testing.T) {
	r := newRegistry(t, 4)
	a := r.Register()
	b := r.Register()
	c := r.Register()

	r.Sleep(a, 20)
	r.Sleep(b, 5)
	r.Sleep(c, 5)

	client, wakeupAt, ok := r.NextWakeup()
	require.True(t, ok)
	assert.Equal(t, b, client, "ties between equal wakeups break toward the lowest index")
	assert.Equal(t, int64(5), wakeupAt)
}

func TestSleepingClientsAscending(t *testing.T) {
	r := newRegistry(t, 4)
	a := r.Register()
	b := r.Register()
	c := r.Register()
	r.Sleep(c, 1)
	r.Sleep(a, 1)

	assert.Equal(t, []int64{a, c}, r.SleepingClients())
	_ = b
}

func TestUnregisterFreesSlotAndDecrementsCounters(t *testing.T) {
	r := newRegistry(t, 2)
	a := r.Register()
	r.Sleep(a, 10)
	r.Unregister(a)

	assert.Equal(t, 0, r.NumClients())
	assert.Equal(t, 0, r.NumSleeping())

	slot, ok := r.Slot(a)
	require.True(t, ok)
	assert.Equal(t, registry.Empty, slot.State)
}

func TestCheckDeadEvictsOnlyDeadClientsAndDrainsThem(t *testing.T) {
	r := newRegistry(t, 4)
	alive := r.Register()
	dead := r.Register()
	r.SetPID(alive, int64(1)) // pid 1 (init) is always alive on a real host
	r.SetPID(dead, int64(1<<30))

	var drained []int64
	r.CheckDead(func(c int64) { drained = append(drained, c) })

	aliveSlot, _ := r.Slot(alive)
	assert.Equal(t, registry.Running, aliveSlot.State)

	deadSlot, _ := r.Slot(dead)
	assert.Equal(t, registry.Empty, deadSlot.State)
	assert.Equal(t, []int64{dead}, drained)
}
