package core

import (
	"strings"

	"github.com/relaybot/relaybot/internal/module"
)

// commandMatch is the winning candidate from matchCommand.
type commandMatch struct {
	rec      *module.Record
	cmdIndex int
	arg      string
}

// dispatchMsg runs the msg-event procedure: the
// command matcher runs first (without suppressing on_msg), then every
// enabled module is walked in priority order; the module owning the
// matched command receives on_cmd immediately before its own on_msg.
func (c *Core) dispatchMsg(ev Event) {
	snapshot := c.Registry.Snapshot(false)

	var enabled []*module.Record
	for _, rec := range snapshot {
		if c.enabledFor(rec, ev.Channel, module.CBMsg, true) {
			enabled = append(enabled, rec)
		}
	}

	match := matchCommand(enabled, ev.Text)

	for _, rec := range enabled {
		if match != nil && match.rec == rec {
			if oc, ok := rec.Module.(module.OnCmder); ok {
				c.invoke(rec, func() { oc.OnCmd(ev.Channel, ev.Nick, match.arg, match.cmdIndex) })
			}
		}
		if om, ok := rec.Module.(module.OnMsger); ok {
			c.invoke(rec, func() { om.OnMsg(ev.Channel, ev.Nick, ev.Text) })
		}
	}
}

// matchCommand scans modules in the order given (already priority
// sorted) for the alias that matches the longest prefix of text,
// followed by end-of-string or whitespace. Ties are broken by picking the first (highest
// priority, lowest alias index) candidate encountered, since the
// caller's iteration order already embodies that tie-break rule.
func matchCommand(records []*module.Record, text string) *commandMatch {
	var best *commandMatch
	bestLen := -1

	for _, rec := range records {
		desc := rec.Descriptor()
		for cmdIdx, cmds := range desc.Commands {
			for _, alias := range strings.Fields(cmds) {
				if !strings.HasPrefix(text, alias) {
					continue
				}
				rest := text[len(alias):]
				if rest != "" && !isWhitespace(rest[0]) {
					continue
				}
				if len(alias) > bestLen {
					bestLen = len(alias)
					best = &commandMatch{rec: rec, cmdIndex: cmdIdx, arg: rest}
				}
			}
		}
	}
	return best
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
