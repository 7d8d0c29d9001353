// Package signalgate translates host-level interruptions into the one
// loop-level event the dispatcher cares about: TERMINATE. The idle-timeout
// side of the original gate (SIGALRM firing an interval timer) is instead
// expressed natively with context.WithTimeout around the bus receive, which
// is the idiomatic Go equivalent of racing a blocking syscall against an
// alarm.
//
// It is intended for internal use by timeserver only.
package signalgate

import (
	"sync"

	"github.com/sgerwk/timeserver/logger"
	"github.com/sgerwk/timeserver/signalwatcher"
)

// Gate watches for interrupt/terminate signals and exposes a channel that
// closes the first time one arrives.
type Gate struct {
	log  logger.Logger
	done chan struct{}
	once sync.Once
}

// Watch installs the signal handlers and returns a Gate. Handlers do
// nothing but log the signal and close the done channel; no other state is
// touched from the signal-watching goroutine.
func Watch(l logger.Logger) *Gate {
	g := &Gate{log: l, done: make(chan struct{})}
	signalwatcher.Watch(func(s signalwatcher.Signal) {
		g.once.Do(func() {
			g.log.Notice("received SIG%s, shutting down", s)
			close(g.done)
		})
	})
	return g
}

// Terminated is closed once a terminate-class signal has been received.
func (g *Gate) Terminated() <-chan struct{} {
	return g.done
}
