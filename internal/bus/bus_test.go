package bus_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgerwk/timeserver/internal/bus"
	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/sgerwk/timeserver/logger"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) (*bus.Bus, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bus.sock")
	b, err := bus.Create(logger.NewBuffer(), path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Destroy() })
	return b, path
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRecvMatchesSelectorAndLeavesRest(t *testing.T) {
	b, path := newBus(t)
	conn := dial(t, path)

	require.NoError(t, wire.Encode(conn, wire.Message{Tag: wire.QUERY, Client: 1}))
	require.NoError(t, wire.Encode(conn, wire.Message{Tag: wire.REGISTER}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e, err := b.Recv(ctx, wire.NotRunning())
	require.NoError(t, err)
	require.Equal(t, wire.REGISTER, e.Msg.Tag, "QUERY should be skipped by the NotRunning selector")

	e2, err := b.Recv(ctx, wire.ToServer())
	require.NoError(t, err)
	require.Equal(t, wire.QUERY, e2.Msg.Tag, "the skipped QUERY should still be in the backlog")
}

func TestRecvTimesOutWhenNothingMatches(t *testing.T) {
	b, _ := newBus(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Recv(ctx, wire.NotRunning())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendToReachesTheOriginatingConnection(t *testing.T) {
	b, path := newBus(t)
	conn := dial(t, path)

	require.NoError(t, wire.Encode(conn, wire.Message{Tag: wire.REGISTER}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := b.Recv(ctx, wire.NotRunning())
	require.NoError(t, err)

	require.NoError(t, b.SendTo(e.Remote, wire.Message{Tag: wire.CLIENTID, Client: 0}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.Decode(conn)
	require.NoError(t, err)
	require.Equal(t, wire.CLIENTID, reply.Tag)
}

func TestTryRecvDrainsWithoutBlocking(t *testing.T) {
	b, _ := newBus(t)

	_, ok := b.TryRecv(wire.Exact(wire.WAKE(3)))
	require.False(t, ok)
}
