package core

import (
	"github.com/relaybot/relaybot/internal/module"
	"github.com/relaybot/relaybot/internal/rlog"
)

// SendModMsg is synchronous, same-thread, same-process inter-module
// RPC. The sender is whatever module is on top of the
// call stack (or "" for a core-initiated message); every other loaded
// module with an OnModMsg callback observes it in priority order.
// Responders call msg.Callback themselves — the core provides no
// default response and does not wait for one beyond the synchronous
// call returning.
func (c *Core) SendModMsg(msg module.ModMsg) {
	if c.depth >= maxReentryDepth {
		rlog.Warn("send_mod_msg depth limit reached for cmd %q, refusing", msg.Cmd)
		return
	}
	c.depth++
	defer func() { c.depth-- }()

	sender := ""
	if rec := c.currentModule(); rec != nil {
		sender = rec.Descriptor().Name
	}

	for _, rec := range c.Registry.Snapshot(false) {
		if rec.Descriptor().Name == sender {
			continue
		}
		mm, ok := rec.Module.(module.OnModMsger)
		if !ok {
			continue
		}
		c.invoke(rec, func() { mm.OnModMsg(sender, msg) })
	}
}
