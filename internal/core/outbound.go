package core

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaybot/relaybot/internal/module"
	"github.com/relaybot/relaybot/internal/rlog"
)

// outboundMsg is one queued send: a monotonic id, a mutable payload
// filters may rewrite or empty, and submit-time attribution from the
// call stack.
type outboundMsg struct {
	id        uint64
	channel   string // "" marks a raw send
	raw       bool
	payload   []byte
	fromModule string
	enqueued  time.Time
}

type targetQueue struct {
	limiter *rate.Limiter
	backlog []*outboundMsg
	maxLen  int
}

// outboundPipeline is the send path: every submission is
// assigned an id, run through every loaded module's OnFilter in
// priority order, then either written immediately or queued per the
// per-target rate limit (backed by golang.org/x/time/rate rather than
// a hand-rolled token bucket).
type outboundPipeline struct {
	core        *Core
	rateLimitMS int
	queueMax    int
	targets     map[string]*targetQueue
}

func newOutboundPipeline(c *Core, rateLimitMS, queueMax int) *outboundPipeline {
	return &outboundPipeline{
		core:        c,
		rateLimitMS: rateLimitMS,
		queueMax:    queueMax,
		targets:     make(map[string]*targetQueue),
	}
}

func (p *outboundPipeline) targetFor(key string) *targetQueue {
	tq, ok := p.targets[key]
	if !ok {
		interval := time.Duration(p.rateLimitMS) * time.Millisecond
		tq = &targetQueue{
			limiter: rate.NewLimiter(rate.Every(interval), 1),
			maxLen:  p.queueMax,
		}
		p.targets[key] = tq
	}
	return tq
}

// SendMsg implements send_msg(channel, text) -> id.
func (p *outboundPipeline) SendMsg(channel, text, fromModule string) uint64 {
	return p.submit(channel, false, []byte(fmt.Sprintf("PRIVMSG %s :%s", channel, text)), text, fromModule)
}

// SendRaw implements send_raw(line) -> id; channel key "" marks raw.
func (p *outboundPipeline) SendRaw(raw, fromModule string) uint64 {
	return p.submit("", true, []byte(raw), "", fromModule)
}

// submit is the shared id-assign / filter / rate-limit path. payload
// is the wire-ready rendering; displayText (when non-empty) is what
// OnMsgOut sees, matching the original "the bot just spoke" contract
// for PRIVMSGs. Raw sends do not reach OnMsgOut.
func (p *outboundPipeline) submit(channel string, raw bool, payload []byte, displayText, fromModule string) uint64 {
	p.core.nextID++
	id := p.core.nextID

	msg := &outboundMsg{id: id, channel: channel, raw: raw, payload: payload, fromModule: fromModule, enqueued: time.Now()}

	if !p.runFilters(msg) {
		return id // suppressed, id still consumed
	}

	key := targetKey(channel, raw)
	tq := p.targetFor(key)

	if tq.limiter.Allow() {
		p.deliver(msg, displayText)
		return id
	}

	if len(tq.backlog) >= tq.maxLen {
		dropped := tq.backlog[0]
		tq.backlog = tq.backlog[1:]
		rlog.Warn("outbound queue for %q full, dropping oldest message id=%d", key, dropped.id)
	}
	tq.backlog = append(tq.backlog, msg)
	return id
}

func targetKey(channel string, raw bool) string {
	if raw {
		return "\x00raw"
	}
	return channel
}

// runFilters invokes OnFilter on every loaded module, in priority
// order, for IRC-bound traffic only. An empty payload
// after any filter short-circuits the chain and suppresses the send.
func (p *outboundPipeline) runFilters(msg *outboundMsg) bool {
	for _, rec := range p.core.Registry.Snapshot(false) {
		f, ok := rec.Module.(module.OnFilterer)
		if !ok {
			continue
		}
		var rewritten []byte
		p.core.invoke(rec, func() {
			rewritten = f.OnFilter(msg.id, msg.channel, msg.payload)
		})
		msg.payload = rewritten
		if len(msg.payload) == 0 {
			return false
		}
	}
	return true
}

// deliver writes the payload to the wire and fans out OnMsgOut.
func (p *outboundPipeline) deliver(msg *outboundMsg, displayText string) {
	if p.core.Sender != nil {
		if err := p.core.Sender.SendRaw(string(msg.payload)); err != nil {
			rlog.Warn("send failed for id=%d: %v", msg.id, err)
		}
	}
	p.core.respondedThisDispatch = true

	if msg.raw || displayText == "" {
		return
	}
	for _, rec := range p.core.Registry.Snapshot(false) {
		if om, ok := rec.Module.(module.OnMsgOuter); ok {
			p.core.invoke(rec, func() { om.OnMsgOut(msg.channel, displayText) })
		}
	}
}

// tick advances the queue: for each target whose limiter now allows a
// send, pop the oldest backlog entry (if any) and redeliver it,
// rerunning the filter chain since a filter may have registered a
// permit keyed on this id in the interim.
func (p *outboundPipeline) tick() {
	for _, tq := range p.targets {
		if len(tq.backlog) == 0 {
			continue
		}
		if !tq.limiter.Allow() {
			continue
		}
		msg := tq.backlog[0]
		tq.backlog = tq.backlog[1:]

		display := ""
		if !msg.raw {
			display = displayTextFromPayload(msg.channel, msg.payload)
		}
		if p.runFilters(msg) {
			p.deliver(msg, display)
		}
	}
}

// displayTextFromPayload recovers the human-readable text for
// OnMsgOut from a rendered "PRIVMSG #chan :text" payload.
func displayTextFromPayload(channel string, payload []byte) string {
	prefix := fmt.Sprintf("PRIVMSG %s :", channel)
	s := string(payload)
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
