// Package mainloop drives the connection state machine:
// DISCONNECTED -> CONNECTING -> ONLINE -> PINGING -> COOLDOWN ->
// CONNECTING. It owns the process's signal handling and is the only
// place that calls core.Dispatch from outside of a module callback,
// preserving the single-goroutine dispatch rule even though IRC,
// stdin and IPC traffic arrive on their own goroutines: each producer
// only ever pushes onto a channel the loop itself drains.
//
// The goroutine supervision style (one errgroup per connection
// lifetime, torn down and rebuilt across reconnects) follows
// minimega's meshage degree-monitoring goroutines; the reconnect
// backoff uses cenkalti/backoff's constant policy rather than a
// hand-rolled retry sleep.
package mainloop

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/core"
	"github.com/relaybot/relaybot/internal/ipc"
	"github.com/relaybot/relaybot/internal/ircnet"
	"github.com/relaybot/relaybot/internal/rlog"
	"github.com/relaybot/relaybot/internal/stdinwatch"
)

// State is a stage in the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Online
	Pinging
	Cooldown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Online:
		return "ONLINE"
	case Pinging:
		return "PINGING"
	case Cooldown:
		return "COOLDOWN"
	}
	return "UNKNOWN"
}

// tickInterval is the cadence on_tick fires at and the resolution the
// state machine uses to notice idle connections.
const tickInterval = 250 * time.Millisecond

// pingTimeout is how long the loop waits for wire activity before
// moving ONLINE -> PINGING and issuing its own keepalive PING.
const pingTimeout = 30 * time.Second

// pongTimeout is how much longer PINGING waits for a reply, on top of
// pingTimeout, before declaring the connection dead and entering
// COOLDOWN — a total of 60s of silence from the last inbound traffic.
const pongTimeout = 30 * time.Second

// cooldownInterval is the constant reconnect delay.
const cooldownInterval = 5 * time.Second

// Loop owns the full runtime: the core dispatcher, the IRC client, the
// IPC bus and the stdin watcher, plus the state machine gluing their
// goroutines to Core.Dispatch.
type Loop struct {
	Cfg    *config.Config
	Core   *core.Core
	Client *ircnet.Client
	IPC    *ipc.Bus
	Stdin  *stdinwatch.Watcher

	state      State
	lastActive time.Time
}

func New(cfg *config.Config, c *core.Core, client *ircnet.Client, bus *ipc.Bus) *Loop {
	l := &Loop{
		Cfg:    cfg,
		Core:   c,
		Client: client,
		IPC:    bus,
	}
	if !cfg.NoStdin {
		l.Stdin = stdinwatch.New()
	}
	return l
}

// Run blocks until the process receives SIGINT/SIGTERM or a fatal
// startup condition occurs, reconnecting across transient IRC drops
// per the state machine until then.
func (l *Loop) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	signal.Ignore(syscall.SIGPIPE)

	if l.IPC != nil {
		go l.IPC.Run()
	}
	if l.Stdin != nil {
		go l.Stdin.Run()
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(cooldownInterval), ctx)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		default:
		}

		l.state = Connecting
		rlog.Info("state -> %s", l.state)

		connErr := l.runConnection(ctx)
		if ctx.Err() != nil {
			l.shutdown()
			return nil
		}

		l.state = Cooldown
		rlog.Warn("connection lost (%v), state -> %s", connErr, l.state)

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			l.shutdown()
			return connErr
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			l.shutdown()
			return nil
		}
	}
}

// runConnection owns one IRC session's lifetime: it starts the wire
// connection on its own goroutine (supervised by an errgroup,
// minimega-meshage style) and a tick clock, and drains every event
// producer from a single select loop so core.Dispatch only ever runs
// here.
func (l *Loop) runConnection(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(connCtx)

	g.Go(func() error {
		return l.Client.Connect()
	})

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	l.Core.Sender = l.Client
	l.lastActive = time.Now()
	l.state = Online

	for {
		select {
		case <-gctx.Done():
			return g.Wait()

		case ev, ok := <-l.Client.Events:
			if !ok {
				cancel()
				return g.Wait()
			}
			l.lastActive = time.Now()
			if l.state == Pinging {
				l.state = Online
				rlog.Info("state -> %s (wire activity)", l.state)
			}
			l.Core.Dispatch(ev)

		case now := <-ticker.C:
			l.Core.Dispatch(core.Event{Kind: core.KindTick, Now: now})
			l.watchIdle(now)

		case line, ok := <-l.stdinLines():
			if !ok {
				continue
			}
			l.Core.Dispatch(core.Event{Kind: core.KindStdin, Text: line})

		case msg, ok := <-l.ipcIncoming():
			if !ok {
				continue
			}
			l.Core.Dispatch(core.Event{Kind: core.KindIPC, IPCSenderID: msg.SenderID, IPCData: msg.Data})
		}
	}
}

// watchIdle advances ONLINE -> PINGING -> (cooldown via connection
// close) when no wire traffic has arrived within pingTimeout/pongTimeout.
func (l *Loop) watchIdle(now time.Time) {
	idle := now.Sub(l.lastActive)
	switch l.state {
	case Online:
		if idle >= pingTimeout {
			l.state = Pinging
			rlog.Info("state -> %s (idle %s)", l.state, idle)
			if err := l.Client.SendRaw("PING :relaybot"); err != nil {
				rlog.Warn("ping: %v", err)
			}
		}
	case Pinging:
		if idle >= pingTimeout+pongTimeout {
			rlog.Warn("no pong within %s, forcing reconnect", pongTimeout)
			l.Client.Close()
		}
	}
}

// stdinLines and ipcIncoming guard against a nil Stdin/IPC (disabled
// via config) by returning a channel that never fires, so the select
// in runConnection doesn't need a nil check per case.
func (l *Loop) stdinLines() <-chan string {
	if l.Stdin == nil {
		return nil
	}
	return l.Stdin.Lines
}

func (l *Loop) ipcIncoming() <-chan ipc.Message {
	if l.IPC == nil {
		return nil
	}
	return l.IPC.Incoming
}

func (l *Loop) shutdown() {
	l.state = Disconnected
	rlog.Info("state -> %s (shutting down)", l.state)
	if l.Client != nil {
		l.Client.Close()
	}
	if l.IPC != nil {
		l.IPC.Close()
	}
	if l.Stdin != nil {
		l.Stdin.Stop()
	}
}
