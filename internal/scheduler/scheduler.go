// Package scheduler implements the wakeup scan run after every event the
// dispatcher handles: find every sleeping client whose time has come, wake
// it, and let a RUN(NEXTWAKE) run end right after the first one.
//
// It is intended for internal use by timeserver only.
package scheduler

import (
	"github.com/sgerwk/timeserver/internal/bus"
	"github.com/sgerwk/timeserver/internal/clock"
	"github.com/sgerwk/timeserver/internal/registry"
	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/sgerwk/timeserver/logger"
)

// Run scans the registry in ascending slot order and wakes every client
// whose wakeup time has elapsed (wakeup_at < now). Slot-index scan order is
// what makes simultaneous wakeups break ties reproducibly.
func Run(log logger.Logger, reg *registry.Registry, clk *clock.Clock, b *bus.Bus) {
	for _, c := range reg.SleepingClients() {
		slot, ok := reg.Slot(c)
		if !ok || slot.State != registry.Sleeping {
			continue
		}
		if slot.WakeupAt >= clk.Now {
			continue
		}

		reg.Wake(c)

		msg := wire.Message{Tag: wire.WAKE(c), Client: c, Time: clk.Visible()}
		if err := b.Send(msg); err != nil {
			log.Error("[scheduler] wake(%d) delivery failed: %v", c, err)
		} else {
			log.Debug("[scheduler] wake(%d) now=%d", c, clk.Now)
		}

		clk.EndAfterWake()
	}
}
