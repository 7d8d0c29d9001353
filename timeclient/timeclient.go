// Package timeclient is the client-side half of the wire contract a time
// authority exposes: register with an authority, report a PID, sleep until
// woken, query the simulated clock, cancel a pending sleep, and unregister.
//
// It does not intercept a program's ordinary time/sleep calls the way the
// original C shim did by preloading itself over libc; Go has no equivalent
// of LD_PRELOAD symbol interposition. Programs that want simulated time
// call this package directly instead, which is the idiomatic Go shape of
// the same contract.
package timeclient

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sgerwk/timeserver/internal/wire"
)

// Client is a registered connection to a time authority.
type Client struct {
	conn net.Conn
	mu   sync.Mutex // serializes request/reply pairs over conn

	id int64
}

// Dial connects to the authority listening at socket, registers, and
// reports the caller's PID, mirroring registerclient()'s REGISTER/PID pair.
// ErrRegistrationRefused is returned if the authority's client table is
// full; the connection is closed in that case.
func Dial(socket string) (*Client, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("timeclient: dial %s: %w", socket, err)
	}

	c := &Client{conn: conn}

	if err := wire.Encode(conn, wire.Message{Tag: wire.REGISTER}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timeclient: register: %w", err)
	}
	reply, err := wire.Decode(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("timeclient: register reply: %w", err)
	}
	if reply.Client == -1 {
		conn.Close()
		return nil, ErrRegistrationRefused
	}
	c.id = reply.Client

	if err := wire.Encode(conn, wire.Message{Tag: wire.PID, Client: c.id, Time: int64(os.Getpid())}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timeclient: reporting pid: %w", err)
	}

	return c, nil
}

// ErrRegistrationRefused is returned by Dial when the authority's client
// table is full.
var ErrRegistrationRefused = fmt.Errorf("timeclient: registration refused, authority's client table is full")

// ID is the client ID this connection was assigned.
func (c *Client) ID() int64 { return c.id }

// Sleep posts SLEEP(seconds) and blocks for the WAKE(id) reply, returning
// the simulated time at which the client woke.
func (c *Client) Sleep(seconds int64) (wokeAt int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := wire.Encode(c.conn, wire.Message{Tag: wire.SLEEP, Client: c.id, Time: seconds}); err != nil {
		return 0, fmt.Errorf("timeclient: sleep: %w", err)
	}
	reply, err := c.recvTag(wire.WAKE(c.id))
	if err != nil {
		return 0, fmt.Errorf("timeclient: waiting for wakeup: %w", err)
	}
	return reply.Time, nil
}

// Cancel sends CANCEL for this client and waits for the matching WAKE(id)
// reply, making it safe to call whether or not the client is actually
// asleep. It takes the same lock Sleep holds while blocked, so a call made
// while a Sleep on this Client is in flight waits until that Sleep returns;
// it does not end that Sleep early.
func (c *Client) Cancel() (wokeAt int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := wire.Encode(c.conn, wire.Message{Tag: wire.CANCEL, Client: c.id}); err != nil {
		return 0, fmt.Errorf("timeclient: cancel: %w", err)
	}
	reply, err := c.recvTag(wire.WAKE(c.id))
	if err != nil {
		return 0, fmt.Errorf("timeclient: waiting for cancel wakeup: %w", err)
	}
	return reply.Time, nil
}

// Query asks the authority for the current simulated time.
func (c *Client) Query() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := wire.Encode(c.conn, wire.Message{Tag: wire.QUERY, Client: c.id}); err != nil {
		return 0, fmt.Errorf("timeclient: query: %w", err)
	}
	reply, err := c.recvTag(wire.TIME)
	if err != nil {
		return 0, fmt.Errorf("timeclient: waiting for time: %w", err)
	}
	return reply.Time, nil
}

// Close unregisters the client and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = wire.Encode(c.conn, wire.Message{Tag: wire.UNREGISTER, Client: c.id})
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) recvTag(want wire.Tag) (wire.Message, error) {
	for {
		m, err := wire.Decode(c.conn)
		if err != nil {
			return wire.Message{}, err
		}
		if m.Tag == want {
			return m, nil
		}
		// A reply for a different pending exchange arrived out of order;
		// this client issues one request at a time so that should not
		// happen, but discard and keep waiting rather than desync.
	}
}
