package core

import (
	"fmt"
	"sync"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/module"
	"github.com/relaybot/relaybot/internal/rlog"
)

// maxReentryDepth bounds GenEvent/SendModMsg recursion.
const maxReentryDepth = 8

// Sender is the narrow surface the outbound pipeline needs from the
// underlying IRC client; internal/ircnet implements it over girc.
type Sender interface {
	SendRaw(line string) error
	Join(channel string) error
	Part(channel string) error
}

// IPCSender is the narrow surface the IPC bus needs; internal/ipc
// implements it over a Unix datagram socket.
type IPCSender interface {
	Send(targetID string, data []byte) error
}

// Core owns every piece of process-wide mutable state: the module
// registry, channel registry, outbound queue, call stack and nick
// cache. All of it is touched only from the single goroutine that
// calls Dispatch/Tick (internal/mainloop).
type Core struct {
	Cfg      *config.Config
	Registry *module.Registry
	Channels *ChannelRegistry

	Sender Sender
	IPC    IPCSender

	stack   callStack
	depth   int
	nextID  uint64
	outbox  *outboundPipeline

	nicksMu sync.Mutex
	nicks   map[string][]string

	respondedThisDispatch bool
}

func New(cfg *config.Config, reg *module.Registry, channels *ChannelRegistry) *Core {
	c := &Core{
		Cfg:      cfg,
		Registry: reg,
		Channels: channels,
		nicks:    make(map[string][]string),
	}
	c.outbox = newOutboundPipeline(c, cfg.RateLimitMS, cfg.QueueMax)
	return c
}

// Services returns the shared core-services facade passed to every
// module's OnInit.
func (c *Core) Services() module.Services { return (*serviceFacade)(c) }

// currentModule returns the Record of the module on top of the call
// stack, or nil if dispatch is core-initiated.
func (c *Core) currentModule() *module.Record { return c.stack.top() }

func (c *Core) defaultEnabledNames() []string {
	var out []string
	for _, rec := range c.Registry.Snapshot(false) {
		if rec.Descriptor().Is(module.DefaultEnabled) {
			out = append(out, rec.Descriptor().Name)
		}
	}
	return out
}

// callbackIDFor maps an event Kind to the CallbackID used by OnMeta
// gating.
func callbackIDFor(k Kind) (module.CallbackID, bool) {
	switch k {
	case KindMsg:
		return module.CBMsg, true
	case KindJoin:
		return module.CBJoin, true
	case KindPart:
		return module.CBPart, true
	case KindAction:
		return module.CBAction, true
	case KindNick:
		return module.CBNick, true
	case KindPM:
		return module.CBPM, true
	}
	return 0, false
}

// enabledFor applies the on_meta gate, falling back to the channel
// enablement registry.
func (c *Core) enabledFor(rec *module.Record, channel string, cbID module.CallbackID, hasCB bool) bool {
	desc := rec.Descriptor()
	if channel == "" {
		return true
	}
	if om, ok := rec.Module.(module.OnMetaer); ok && hasCB {
		return om.OnMeta(desc.Name, channel, cbID)
	}
	return c.Channels.Enabled(channel, desc.Name, desc.Is(module.Global))
}

func (c *Core) invoke(rec *module.Record, fn func()) {
	c.stack.push(rec)
	defer c.stack.pop()
	defer func() {
		if r := recover(); r != nil {
			rlog.Module(rec.Descriptor().Name, "callback panicked, unloading module: %v", r)
			c.Registry.Remove(rec.Descriptor().Name)
		}
	}()
	fn()
}

// Dispatch is the single entry point for every externally-sourced or
// synthetic event.
func (c *Core) Dispatch(ev Event) {
	if c.depth >= maxReentryDepth {
		rlog.Warn("dispatch depth limit reached, refusing nested event %v", ev.Kind)
		return
	}
	c.depth++
	defer func() { c.depth-- }()

	if c.depth == 1 {
		c.respondedThisDispatch = false
	}

	switch ev.Kind {
	case KindConnect:
		c.dispatchSimple(ev.Channel, 0, false, func(rec *module.Record) {
			if oc, ok := rec.Module.(module.OnConnecter); ok {
				c.invoke(rec, func() { oc.OnConnect(ev.Server) })
			}
		})
	case KindMsg:
		c.dispatchMsg(ev)
	case KindAction:
		c.dispatchSimple(ev.Channel, module.CBAction, true, func(rec *module.Record) {
			if oa, ok := rec.Module.(module.OnActioner); ok {
				c.invoke(rec, func() { oa.OnAction(ev.Channel, ev.Nick, ev.Text) })
			}
		})
	case KindPM:
		c.dispatchSimple("", module.CBPM, false, func(rec *module.Record) {
			if op, ok := rec.Module.(module.OnPMer); ok {
				c.invoke(rec, func() { op.OnPM(ev.Nick, ev.Text) })
			}
		})
	case KindJoin:
		c.rememberNick(ev.Channel, ev.Nick, true)
		c.Channels.OnJoinObserved(ev.Channel, c.defaultEnabledNames())
		c.dispatchSimple(ev.Channel, module.CBJoin, true, func(rec *module.Record) {
			if oj, ok := rec.Module.(module.OnJoiner); ok {
				c.invoke(rec, func() { oj.OnJoin(ev.Channel, ev.Nick) })
			}
		})
	case KindPart:
		c.rememberNick(ev.Channel, ev.Nick, false)
		c.dispatchSimple(ev.Channel, module.CBPart, true, func(rec *module.Record) {
			if op, ok := rec.Module.(module.OnParter); ok {
				c.invoke(rec, func() { op.OnPart(ev.Channel, ev.Nick) })
			}
		})
		c.Channels.OnPart(ev.Channel)
	case KindNick:
		c.dispatchSimple("", module.CBNick, false, func(rec *module.Record) {
			if on, ok := rec.Module.(module.OnNicker); ok {
				c.invoke(rec, func() { on.OnNick(ev.OldNick, ev.NewNick) })
			}
		})
	case KindNumeric:
		// Name-list numerics are expanded into individual synthetic
		// join events by the caller (ircnet), so there is nothing
		// numeric-specific left to dispatch here beyond on_unknown
		// for truly unhandled numerics, which arrive as KindUnknown.
	case KindUnknown:
		if !ev.Synthetic {
			c.dispatchSimple("", 0, false, func(rec *module.Record) {
				if ou, ok := rec.Module.(module.OnUnknowner); ok {
					c.invoke(rec, func() { ou.OnUnknown(ev.UnknownEvent, ev.UnknownOrigin, ev.Params) })
				}
			})
		}
	case KindTick:
		for _, rec := range c.Registry.Snapshot(false) {
			if ot, ok := rec.Module.(module.OnTicker); ok {
				c.invoke(rec, func() { ot.OnTick(ev.Now) })
			}
		}
		c.Registry.TickWatch()
		c.outbox.tick()
		if c.Channels.Dirty() {
			if err := c.Channels.Save(); err != nil {
				rlog.Warn("save channel registry: %v", err)
			}
		}
	case KindStdin:
		for _, rec := range c.Registry.Snapshot(false) {
			if os_, ok := rec.Module.(module.OnStdiner); ok {
				c.invoke(rec, func() { os_.OnStdin(ev.Text) })
			}
		}
	case KindIPC:
		for _, rec := range c.Registry.Snapshot(false) {
			if oi, ok := rec.Module.(module.OnIPCer); ok {
				c.invoke(rec, func() { oi.OnIPC(ev.IPCSenderID, ev.IPCData) })
			}
		}
	}
}

// dispatchSimple runs fn over every module that passes the channel
// gate, in priority order. The registry snapshot always includes
// GLOBAL modules here; enabledFor (via Channels.Enabled's isGlobal
// bypass) is the single place GLOBAL is honored, never the snapshot
// itself.
func (c *Core) dispatchSimple(channel string, cbID module.CallbackID, hasCB bool, fn func(rec *module.Record)) {
	for _, rec := range c.Registry.Snapshot(false) {
		if channel != "" && !c.enabledFor(rec, channel, cbID, hasCB) {
			continue
		}
		fn(rec)
	}
}

// GenEvent posts a synthetic event as if it arrived from the wire,
// bounded by the same reentry depth guard as everything else nested.
func (c *Core) GenEvent(kind module.CallbackID, args ...interface{}) {
	ev, ok := synthesize(kind, args...)
	if !ok {
		rlog.Warn("gen_event: unsupported callback id %v", kind)
		return
	}
	ev.Synthetic = true
	c.Dispatch(ev)
}

func synthesize(kind module.CallbackID, args ...interface{}) (Event, bool) {
	str := func(i int) string {
		if i < len(args) {
			if s, ok := args[i].(string); ok {
				return s
			}
		}
		return ""
	}
	switch kind {
	case module.CBMsg:
		return Event{Kind: KindMsg, Channel: str(0), Nick: str(1), Text: str(2)}, true
	case module.CBAction:
		return Event{Kind: KindAction, Channel: str(0), Nick: str(1), Text: str(2)}, true
	case module.CBPM:
		return Event{Kind: KindPM, Nick: str(0), Text: str(1)}, true
	case module.CBJoin:
		return Event{Kind: KindJoin, Channel: str(0), Nick: str(1)}, true
	case module.CBPart:
		return Event{Kind: KindPart, Channel: str(0), Nick: str(1)}, true
	case module.CBNick:
		return Event{Kind: KindNick, OldNick: str(0), NewNick: str(1)}, true
	}
	return Event{}, false
}

func (c *Core) rememberNick(channel, nick string, joined bool) {
	c.nicksMu.Lock()
	defer c.nicksMu.Unlock()
	list := c.nicks[channel]
	if joined {
		for _, n := range list {
			if n == nick {
				return
			}
		}
		c.nicks[channel] = append(list, nick)
		return
	}
	for i, n := range list {
		if n == nick {
			c.nicks[channel] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (c *Core) GetNicks(channel string) []string {
	c.nicksMu.Lock()
	defer c.nicksMu.Unlock()
	out := make([]string, len(c.nicks[channel]))
	copy(out, c.nicks[channel])
	return out
}

func (c *Core) GetChannels() []string {
	return c.Channels.ShouldJoinChannels()
}

// String satisfies fmt.Stringer for debug logging.
func (c *Core) String() string { return fmt.Sprintf("Core(%s)", c.Cfg.Nick) }
