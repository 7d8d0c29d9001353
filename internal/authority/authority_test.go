package authority_test

import (
	"bytes"
	"context"
	"math/rand/v2"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sgerwk/timeserver/internal/authority"
	"github.com/sgerwk/timeserver/internal/clock"
	"github.com/sgerwk/timeserver/internal/signalgate"
	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/sgerwk/timeserver/logger"
	"github.com/sgerwk/timeserver/timeclient"
	"github.com/stretchr/testify/require"
)

// startAuthority brings up an authority on a temp socket and returns its
// address and a stop function that cancels the run loop and waits for it
// to return.
func startAuthority(t *testing.T, cfg authority.Config) (socket string, stop func()) {
	t.Helper()

	cfg.SocketPath = filepath.Join(t.TempDir(), "bus.sock")
	if cfg.Capacity == 0 {
		cfg.Capacity = authority.DefaultCapacity
	}

	clk := clock.New(cfg.Origin, cfg.IdleJumpSet, cfg.IdleJump, cfg.BusyWait, cfg.NoFork, rand.New(rand.NewPCG(1, 1)))

	a, err := authority.New(logger.NewBuffer(), cfg, clk, &bytes.Buffer{})
	require.NoError(t, err)

	gate := signalgate.Watch(logger.NewBuffer())
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Run(ctx, gate)
	}()

	return cfg.SocketPath, func() {
		cancel()
		wg.Wait()
	}
}

// runFor posts a RUN(seconds) message, the same request timerun sends.
func runFor(t *testing.T, socket string, seconds int64) {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.Encode(conn, wire.Message{Tag: wire.RUN, Time: seconds}))
}

func TestSingleSleeperBoundedRun(t *testing.T) {
	// scenario 1: A registers, sleeps 5, the driver runs 10 seconds; A's
	// wakeup carries time=5 and the clock stops at 10.
	socket, stop := startAuthority(t, authority.Config{IdleTime: 10 * time.Millisecond})
	defer stop()

	a, err := timeclient.Dial(socket)
	require.NoError(t, err)
	defer a.Close()

	done := make(chan int64, 1)
	go func() {
		wokeAt, _ := a.Sleep(5)
		done <- wokeAt
	}()

	time.Sleep(50 * time.Millisecond)
	runFor(t, socket, 10)

	select {
	case wokeAt := <-done:
		require.Equal(t, int64(5), wokeAt)
	case <-time.After(2 * time.Second):
		t.Fatal("A was never woken")
	}
}

func TestCancelDuringSleepAlwaysWakes(t *testing.T) {
	// scenario 4: CANCEL always elicits exactly one WAKE and leaves `now`
	// unchanged when nothing else has run the clock forward. The idle time
	// is far longer than the test, so no idle jump can wake the sleeper
	// before the CANCEL does.
	socket, stop := startAuthority(t, authority.Config{IdleTime: time.Minute})
	defer stop()

	a, err := timeclient.Dial(socket)
	require.NoError(t, err)
	defer a.Close()
	runFor(t, socket, 1000)

	done := make(chan int64, 1)
	go func() {
		wokeAt, _ := a.Sleep(100)
		done <- wokeAt
	}()

	time.Sleep(50 * time.Millisecond)

	// Sent over a second connection to exercise that a cancel reaches the
	// sleeper's registered connection regardless of which connection it
	// arrived on, not just the connection that happens to issue it.
	canceller, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer canceller.Close()
	require.NoError(t, wire.Encode(canceller, wire.Message{Tag: wire.CANCEL, Client: a.ID()}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not wake the sleeper")
	}
}

func TestRegisterRefusedWhenTableIsFull(t *testing.T) {
	socket, stop := startAuthority(t, authority.Config{IdleTime: 10 * time.Millisecond, Capacity: 1})
	defer stop()

	first, err := timeclient.Dial(socket)
	require.NoError(t, err)
	defer first.Close()

	_, err = timeclient.Dial(socket)
	require.ErrorIs(t, err, timeclient.ErrRegistrationRefused)
}
