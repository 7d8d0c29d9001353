// Package registry tracks the fixed-capacity table of clients the time
// authority has registered: their process ID, and whether they are running
// or sleeping until a scheduled wakeup.
//
// It is intended for internal use by timeserver only.
package registry

import (
	"github.com/sgerwk/timeserver/internal/procwatch"
	"github.com/sgerwk/timeserver/logger"
	"github.com/sgerwk/timeserver/pool"
)

// State is the lifecycle state of a registry slot.
type State int

const (
	Empty State = iota
	Running
	Sleeping
)

// Slot is one entry in the client table. PID is 0 until the client's PID
// message arrives. WakeupAt is only meaningful while State == Sleeping.
type Slot struct {
	State    State
	PID      int64
	WakeupAt int64
}

// Registry is the fixed-capacity client table: slot index doubles as
// client ID, IDs are reused after unregistration, and allocation always
// picks the lowest free index so IDs stay stable across reuse.
type Registry struct {
	log     logger.Logger
	slots   []Slot
	sleep   int // numsleeping
	clients int // numclients
}

// New creates a registry with the given fixed capacity.
func New(l logger.Logger, capacity int) *Registry {
	return &Registry{
		log:   l,
		slots: make([]Slot, capacity),
	}
}

// Capacity is the fixed number of slots.
func (r *Registry) Capacity() int { return len(r.slots) }

// NumClients is the count of non-empty slots.
func (r *Registry) NumClients() int { return r.clients }

// NumSleeping is the count of slots in the Sleeping state.
func (r *Registry) NumSleeping() int { return r.sleep }

// Slot returns a copy of the slot for client c. ok is false for an
// out-of-range index.
func (r *Registry) Slot(c int64) (Slot, bool) {
	if c < 0 || int(c) >= len(r.slots) {
		return Slot{}, false
	}
	return r.slots[c], true
}

// Register allocates the lowest-index empty slot and marks it Running.
// It returns -1 if the table is full.
func (r *Registry) Register() int64 {
	for i := range r.slots {
		if r.slots[i].State == Empty {
			r.slots[i] = Slot{State: Running}
			r.clients++
			return int64(i)
		}
	}
	return -1
}

// Unregister empties the slot for client c.
func (r *Registry) Unregister(c int64) {
	if c < 0 || int(c) >= len(r.slots) {
		return
	}
	if r.slots[c].State == Sleeping {
		r.sleep--
	}
	if r.slots[c].State != Empty {
		r.clients--
	}
	r.slots[c] = Slot{}
}

// SetPID records the host PID for client c.
func (r *Registry) SetPID(c, pid int64) {
	if c < 0 || int(c) >= len(r.slots) {
		return
	}
	r.slots[c].PID = pid
}

// Sleep transitions client c from Running to Sleeping with the given
// wakeup time.
func (r *Registry) Sleep(c, wakeupAt int64) {
	if c < 0 || int(c) >= len(r.slots) {
		return
	}
	if r.slots[c].State != Sleeping {
		r.sleep++
	}
	r.slots[c].State = Sleeping
	r.slots[c].WakeupAt = wakeupAt
}

// Wake transitions client c from Sleeping to Running. It is a no-op if the
// client wasn't Sleeping (CANCEL is idempotent: the caller always sends a
// WAKE reply regardless of what this returns).
func (r *Registry) Wake(c int64) (wasSleeping bool) {
	if c < 0 || int(c) >= len(r.slots) {
		return false
	}
	wasSleeping = r.slots[c].State == Sleeping
	if wasSleeping {
		r.sleep--
		r.slots[c].State = Running
	}
	return wasSleeping
}

// NextWakeup returns the Sleeping slot with the earliest wakeup time and
// that time; ties go to the lowest index. ok is false if no client is
// sleeping. Scanning in ascending index order makes tie-breaking between
// simultaneous wakeups reproducible.
func (r *Registry) NextWakeup() (client, wakeupAt int64, ok bool) {
	client = -1
	for i := range r.slots {
		if r.slots[i].State != Sleeping {
			continue
		}
		if client == -1 || r.slots[i].WakeupAt < wakeupAt {
			client = int64(i)
			wakeupAt = r.slots[i].WakeupAt
		}
	}
	return client, wakeupAt, client != -1
}

// SleepingClients returns every Sleeping slot in ascending index order,
// the scan order the wakeup scheduler relies on for deterministic ties.
func (r *Registry) SleepingClients() []int64 {
	var out []int64
	for i := range r.slots {
		if r.slots[i].State == Sleeping {
			out = append(out, int64(i))
		}
	}
	return out
}

// liveProbeConcurrency bounds how many PID liveness probes run at once
// during CheckDead; a full 200-slot table is cheap to probe serially, but
// the pool keeps the scan from serializing needlessly as capacity grows.
const liveProbeConcurrency = 16

// CheckDead probes every occupied slot with a known PID for liveness and
// evicts those whose process has exited. drain is called once per evicted
// client so the caller can flush any pending WAKE(c) replies from the bus
// before the slot (and its ID) can be reused.
func (r *Registry) CheckDead(drain func(client int64)) {
	type candidate struct {
		idx int64
		pid int64
	}
	var candidates []candidate
	for i := range r.slots {
		if r.slots[i].State == Empty || r.slots[i].PID == 0 {
			continue
		}
		candidates = append(candidates, candidate{idx: int64(i), pid: r.slots[i].PID})
	}
	if len(candidates) == 0 {
		return
	}

	dead := make([]bool, len(candidates))
	p := pool.New(liveProbeConcurrency)
	for i, c := range candidates {
		i, c := i, c
		p.Spawn(func() {
			if !procwatch.Alive(c.pid) {
				p.Lock()
				dead[i] = true
				p.Unlock()
			}
		})
	}
	p.Wait()

	for i, c := range candidates {
		if !dead[i] {
			continue
		}
		r.log.Debug("[registry] client %d (pid %d) is dead, evicting", c.idx, c.pid)
		drain(c.idx)
		r.Unregister(c.idx)
	}
}
