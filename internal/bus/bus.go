// Package bus provides the host-local message bus the time authority shares
// with its clients: a typed queue of wire.Message records, addressable by a
// well-known path, supporting blocking and non-blocking selective receive.
//
// Where the original authority used a SysV message queue (msgget/msgsnd/
// msgrcv) keyed by ftok(path, project), this adapts the same contract onto a
// Unix domain socket: clients dial in, the authority accepts one long-lived
// connection per client and a single in-process backlog stands in for the
// kernel queue, scanned under a condition variable to emulate "receive the
// first message matching this tag selector" without consuming the rest.
//
// It is intended for internal use by timeserver only.
package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/sgerwk/timeserver/logger"
)

// ErrClosed is returned by Recv/TryRecv once the bus has been destroyed.
var ErrClosed = errors.New("bus: destroyed")

// Remote is the connection a Message arrived on, kept so a reply can be
// routed back to the client that sent it before that client has been
// associated with a registry slot (e.g. the CLIENTID reply to REGISTER).
type Remote struct {
	conn net.Conn
	mu   sync.Mutex
}

func (r *Remote) send(m wire.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return wire.Encode(r.conn, m)
}

// Envelope pairs an inbound Message with the connection it arrived on.
type Envelope struct {
	Msg    wire.Message
	Remote *Remote
}

// Bus is a host-local typed queue of wire.Message records.
type Bus struct {
	log  logger.Logger
	path string
	ln   net.Listener

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []Envelope
	conns   map[int64]*Remote
	closed  bool
}

// Create starts listening on path (removing any stale socket file left
// behind by a killed authority) and returns a Bus ready to accept clients.
// Permissions are left world read/writable, matching the original queue's
// 0666-equivalent access so unprivileged clients can attach.
func Create(l logger.Logger, path string) (*Bus, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("creating message bus at %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		l.Warn("[bus] couldn't relax permissions on %s: %v", path, err)
	}

	b := &Bus{
		log:   l,
		path:  path,
		ln:    ln,
		conns: map[int64]*Remote{},
	}
	b.cond = sync.NewCond(&b.mu)

	go b.acceptLoop()

	return b, nil
}

func (b *Bus) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return // listener closed by Destroy
		}
		r := &Remote{conn: conn}
		go b.readLoop(r)
	}
}

func (b *Bus) readLoop(r *Remote) {
	for {
		m, err := wire.Decode(r.conn)
		if err != nil {
			return
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.backlog = append(b.backlog, Envelope{Msg: m, Remote: r})
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// Associate records that future Send()s addressed to client should be
// delivered over remote's connection. It must be called before the first
// Send to that client (typically right after a REGISTER is granted an ID).
func (b *Bus) Associate(client int64, remote *Remote) {
	b.mu.Lock()
	b.conns[client] = remote
	b.mu.Unlock()
}

// Forget drops the client->connection association, e.g. on UNREGISTER or
// eviction, so a reused client ID cannot be routed to a dead connection.
func (b *Bus) Forget(client int64) {
	b.mu.Lock()
	delete(b.conns, client)
	b.mu.Unlock()
}

// Send delivers a reply to msg.Client over its associated connection. A
// failed write is logged and returned, as is a missing association (which is
// not logged here); the authority's callers log or ignore it and carry on,
// since the client will either retry or be evicted.
func (b *Bus) Send(msg wire.Message) error {
	b.mu.Lock()
	remote, ok := b.conns[msg.Client]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bus: no connection for client %d", msg.Client)
	}
	if err := remote.send(msg); err != nil {
		b.log.Error("[bus] send %s to client %d failed: %v", msg.Tag, msg.Client, err)
		return err
	}
	return nil
}

// SendTo delivers a reply directly over remote's connection, bypassing the
// client->connection table. Used only for the CLIENTID reply to REGISTER,
// the one reply sent before the client has a registered connection to
// address by ID.
func (b *Bus) SendTo(remote *Remote, msg wire.Message) error {
	if err := remote.send(msg); err != nil {
		b.log.Error("[bus] send %s failed: %v", msg.Tag, err)
		return err
	}
	return nil
}

// Recv blocks until a message matching selector arrives, ctx is done, or
// the bus is destroyed.
func (b *Bus) Recv(ctx context.Context, selector wire.Selector) (Envelope, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if e, ok := b.takeLocked(selector); ok {
			return e, nil
		}
		if b.closed {
			return Envelope{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}
		b.cond.Wait()
	}
}

// TryRecv is the non-blocking variant used while draining replies for an
// evicted client: it returns immediately whether or not a match was found.
func (b *Bus) TryRecv(selector wire.Selector) (Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.takeLocked(selector)
}

func (b *Bus) takeLocked(selector wire.Selector) (Envelope, bool) {
	for i, e := range b.backlog {
		if selector.Match(e.Msg.Tag) {
			b.backlog = append(b.backlog[:i], b.backlog[i+1:]...)
			return e, true
		}
	}
	return Envelope{}, false
}

// Destroy removes the bus from the host, as the authority owns both
// creation and teardown; clients only ever attach.
func (b *Bus) Destroy() error {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()

	err := b.ln.Close()
	_ = os.Remove(b.path)
	return err
}
