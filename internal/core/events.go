// Package core implements the event dispatcher, outbound pipeline,
// channel enablement registry, inter-module bus and call-stack
// bookkeeping. It is the heart of the framework: every module
// callback reachable from an IRC event, a tick, stdin or IPC traffic
// is invoked from here.
package core

import "time"

// Kind enumerates the event sources the dispatcher accepts.
type Kind int

const (
	KindConnect Kind = iota
	KindMsg
	KindAction
	KindPM
	KindJoin
	KindPart
	KindNick
	KindNumeric
	KindUnknown
	KindTick
	KindStdin
	KindIPC
)

// Event is the core's normalized representation of anything the
// dispatcher can process, whether it arrived over the wire or was
// synthesized by GenEvent.
type Event struct {
	Kind Kind

	Server  string // KindConnect
	Channel string // KindMsg/Action/Join/Part/Numeric
	Nick    string // sender nick, most event kinds
	Text    string // KindMsg/Action/PM/Stdin

	OldNick string // KindNick
	NewNick string // KindNick

	NumericCode int      // KindNumeric
	Params      []string // KindNumeric/Unknown

	UnknownEvent  string // KindUnknown
	UnknownOrigin string // KindUnknown

	IPCSenderID string // KindIPC
	IPCData     []byte // KindIPC

	Now time.Time // KindTick

	// Synthetic is true for events posted via GenEvent and for the
	// per-nick join events ircnet expands from a name-list reply, used
	// to guard against re-firing on_unknown for a synthesized event.
	Synthetic bool
}
