package core

import "github.com/relaybot/relaybot/internal/module"

// callStack tracks which module callback is currently executing, the
// Go stand-in for original_source/src/insobot.c's mod_call_stack
// (sb_push/sb_pop on a stretchy buffer of Module*). Because every
// callback runs on the single main-loop goroutine, a plain slice is
// sufficient — no locking needed, only push/pop discipline around
// each callback invocation.
type callStack struct {
	stack []*module.Record
}

func (c *callStack) push(rec *module.Record) { c.stack = append(c.stack, rec) }

func (c *callStack) pop() {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// top returns the currently executing module's Record, or nil if
// nothing is being dispatched (core-initiated calls, e.g. a built-in
// command issuing a send on the module's behalf use the explicit
// record already on the stack instead).
func (c *callStack) top() *module.Record {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *callStack) depth() int { return len(c.stack) }
