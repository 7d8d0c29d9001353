// Package authority implements the time authority's request dispatcher: the
// main loop that receives client messages, hands them to the registry and
// clock, runs the wakeup scheduler, and tolerates client death, signal
// interruption, and its own shutdown.
//
// It is intended for internal use by timeserver only.
package authority

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sgerwk/timeserver/internal/bus"
	"github.com/sgerwk/timeserver/internal/clock"
	"github.com/sgerwk/timeserver/internal/registry"
	"github.com/sgerwk/timeserver/internal/scheduler"
	"github.com/sgerwk/timeserver/internal/signalgate"
	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/sgerwk/timeserver/logger"
)

// Authority owns the message bus, client registry, and simulated clock for
// one simulation. It is single-threaded: Run's goroutine is the only
// mutator of the registry and clock for the Authority's entire lifetime.
type Authority struct {
	cfg Config
	log logger.Logger
	bus *bus.Bus
	reg *registry.Registry
	clk *clock.Clock
	tr  *trace
}

// New creates the message bus and registry and returns an Authority ready
// to Run. clk is constructed by the caller so it can be seeded and
// configured (idle jump, busy-wait, no-fork) before the first event.
func New(l logger.Logger, cfg Config, clk *clock.Clock, traceOut io.Writer) (*Authority, error) {
	b, err := bus.Create(l, cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	return &Authority{
		cfg: cfg,
		log: l,
		bus: b,
		reg: registry.New(l, cfg.Capacity),
		clk: clk,
		tr:  newTrace(traceOut, clk.Origin),
	}, nil
}

// Run executes the dispatch loop until ctx is done or gate observes a
// terminate signal, then destroys the message bus and returns.
func (a *Authority) Run(ctx context.Context, gate *signalgate.Gate) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-gate.Terminated():
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		msg, env, synthetic, ok := a.receive(runCtx)
		if !ok {
			break
		}

		fatal := a.dispatch(msg, env, synthetic)

		scheduler.Run(a.log, a.reg, a.clk, a.bus)

		if fatal {
			break
		}
	}

	line := a.tr.line(a.clk.Now)
	line.client("").command("quit()").result("registered=%d sleeping=%d", a.reg.NumClients(), a.reg.NumSleeping())
	line.done()

	return a.bus.Destroy()
}

// receive implements the dispatcher's receive-strategy selection: pick a
// selector appropriate to whether a run is active, wait for a message (or
// synthesize TIMEOUT on idle/fast-path), and translate a cancelled wait
// into either a TIMEOUT event or a request to stop the loop.
func (a *Authority) receive(runCtx context.Context) (msg wire.Message, env bus.Envelope, synthetic bool, ok bool) {
	switch {
	case !a.clk.RunActive():
		e, err := a.bus.Recv(runCtx, wire.NotRunning())
		if err != nil {
			return wire.Message{}, bus.Envelope{}, false, false
		}
		return e.Msg, e, false, true

	case a.cfg.NoFork && a.reg.NumClients() == a.reg.NumSleeping():
		return wire.Message{Tag: wire.TIMEOUT}, bus.Envelope{}, true, true

	default:
		iterCtx, cancel := context.WithTimeout(runCtx, a.cfg.IdleTime)
		defer cancel()

		e, err := a.bus.Recv(iterCtx, wire.ToServer())
		if err == nil {
			return e.Msg, e, false, true
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return wire.Message{Tag: wire.TIMEOUT}, bus.Envelope{}, false, true
		}
		return wire.Message{}, bus.Envelope{}, false, false
	}
}

// drainWakes flushes any pending WAKE(client) replies left on the bus by a
// client that will never read them again, so a reused ID can't inherit a
// stale wakeup.
func (a *Authority) drainWakes(client int64) {
	for {
		if _, ok := a.bus.TryRecv(wire.Exact(wire.WAKE(client))); !ok {
			break
		}
	}
	a.bus.Forget(client)
}

// dispatch handles one message and returns true if the authority must
// terminate immediately afterward (the registry-full condition: the
// original authority has no recovery path for a client table that can
// never free a slot for the client it just turned away, so it reports
// -1 and exits rather than limping on in a state no client expects).
func (a *Authority) dispatch(msg wire.Message, env bus.Envelope, synthetic bool) (fatal bool) {
	line := a.tr.line(a.clk.Now)

	switch msg.Tag {
	case wire.NONE:
		line.client("").command("none()").done()

	case wire.REGISTER:
		line.client("").command("register()")
		a.reg.CheckDead(a.drainWakes)

		client := a.reg.Register()
		if client == -1 {
			line.result("cannot register, terminating").done()
			a.bus.SendTo(env.Remote, wire.Message{Tag: wire.CLIENTID, Client: -1, Time: a.clk.Visible()})
			return true
		}

		a.bus.Associate(client, env.Remote)
		reply := wire.Message{Tag: wire.CLIENTID, Client: client, Time: a.clk.Visible()}
		if err := a.bus.SendTo(env.Remote, reply); err != nil {
			line.result("id=%d send-failed", client).done()
			break
		}
		line.result("id=%d", client).done()

	case wire.UNREGISTER:
		line.client(fmt.Sprint(msg.Client)).command("unregister()")
		a.reg.Unregister(msg.Client)
		a.bus.Forget(msg.Client)
		a.clk.EndOnSleep()
		line.result("end=%d", a.clk.End).done()

	case wire.PID:
		line.client(fmt.Sprint(msg.Client)).command(fmt.Sprintf("pid(%d)", msg.Time))
		a.reg.SetPID(msg.Client, msg.Time)
		line.done()

	case wire.TIMEOUT:
		word := "jump()"
		if !synthetic {
			word = "timeout()"
		}
		line.client("").command(word)

		a.reg.CheckDead(a.drainWakes)
		_, wakeupAt, hasSleeper := a.reg.NextWakeup()
		a.clk.IdleAdvance(hasSleeper, wakeupAt)
		line.result("now=%d end=%d", a.clk.Now, a.clk.End).done()

	case wire.RUN:
		line.client("").command(fmt.Sprintf("run(%d)", msg.Time))
		a.clk.ExtendRun(msg.Time)
		line.result("end=%d", a.clk.End).done()

	case wire.QUERY:
		line.client(fmt.Sprint(msg.Client)).command("query()")
		reply := wire.Message{Tag: wire.TIME, Client: msg.Client, Time: a.clk.Visible()}
		if err := a.bus.Send(reply); err != nil {
			line.result("send-failed").done()
			break
		}
		a.clk.Query()
		line.done()

	case wire.SLEEP:
		wakeupAt := a.clk.SleepWakeupAt(msg.Time)
		line.client(fmt.Sprint(msg.Client)).command(fmt.Sprintf("sleep(%d)", msg.Time))
		a.reg.Sleep(msg.Client, wakeupAt)
		a.clk.EndOnSleep()
		line.result("wakeup=%d", wakeupAt+1).done()

	case wire.CANCEL:
		line.client(fmt.Sprint(msg.Client)).command("cancel()")
		a.reg.Wake(msg.Client)
		reply := wire.Message{Tag: wire.WAKE(msg.Client), Client: msg.Client, Time: a.clk.Visible()}
		// Routed through the client's registered connection (the same path
		// the scheduler uses for an ordinary wakeup), not back over
		// whichever connection happened to carry this CANCEL: a cancel
		// triggered out-of-band must still reach whoever is actually
		// blocked waiting for the wake.
		a.bus.Send(reply)
		line.result("wakeup(%d)", msg.Client).done()

	default:
		a.log.Warn("[authority] unknown message tag: %s", msg.Tag)
	}

	return false
}
