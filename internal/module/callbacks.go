package module

import (
	"os"
	"time"
)

// CallbackID identifies which callback kind is being dispatched, used
// by OnMeta gating and GenEvent.
type CallbackID int

const (
	CBMsg CallbackID = iota
	CBCmd
	CBJoin
	CBPart
	CBAction
	CBNick
	CBPM
)

// ModMsg is the inter-module RPC envelope. Callback is invoked by a responder with a result value
// and the sender-supplied UserDatum round-tripped verbatim.
type ModMsg struct {
	Cmd      string
	Arg      interface{}
	Callback func(result, userDatum interface{}) interface{}
	UserDatum interface{}
}

// Services is the core-services surface exposed to modules, the Go
// analogue of original_source/src/module.h's IRCCoreCtx. A single
// instance is shared by every loaded module; calls such as
// GetDataFile/SaveMe resolve "the currently executing module" from the
// dispatcher's call stack rather than taking a module name parameter,
// matching the original API.
type Services interface {
	Username() string
	GetDataFile() string
	GetModules(channelOnly bool) []Descriptor
	GetChannels() []string
	GetNicks(channel string) []string

	Join(channel string)
	Part(channel string)

	// EnableModule/DisableModule/ModuleEnabled/EnabledModules expose the
	// channel enablement registry to admin-style modules;
	// ordinary modules never need them, they only ever read their own
	// gate via the on_meta callback.
	EnableModule(channel, name string)
	DisableModule(channel, name string)
	ModuleEnabled(channel, name string) bool
	EnabledModules(channel string) []string

	SendMsg(channel, text string) uint64
	SendRaw(raw string) uint64
	SendIPC(targetID string, data []byte)
	SendModMsg(msg ModMsg)

	SaveMe()
	Log(format string, args ...interface{})
	StripColors(msg string) string
	Responded() bool

	// GenEvent posts a synthetic event onto the dispatcher as if it
	// arrived from the wire.
	GenEvent(kind CallbackID, args ...interface{})
}

// Module is the minimal contract every relaybot module implements.
// Every other callback is optional and discovered via type assertion
// against the interfaces below, the same "accept narrow interfaces"
// idiom as http.Hijacker/Flusher.
type Module interface {
	Descriptor() Descriptor
}

type OnIniter interface {
	// OnInit returns false to refuse installation.
	OnInit(svc Services) bool
}

type OnQuiter interface{ OnQuit() }

type OnConnecter interface{ OnConnect(server string) }

type OnMsger interface{ OnMsg(channel, nick, text string) }

type OnActioner interface{ OnAction(channel, nick, text string) }

type OnPMer interface{ OnPM(nick, text string) }

type OnJoiner interface{ OnJoin(channel, nick string) }

type OnParter interface{ OnPart(channel, nick string) }

type OnNicker interface{ OnNick(oldNick, newNick string) }

type OnCmder interface {
	OnCmd(channel, nick, arg string, cmdID int)
}

type OnSaver interface {
	// OnSave receives a temp file; return true to commit it.
	OnSave(f *os.File) bool
}

type OnModifieder interface{ OnModified() }

type OnMetaer interface {
	OnMeta(modName, channel string, cbID CallbackID) bool
}

type OnModMsger interface {
	OnModMsg(sender string, msg ModMsg)
}

type OnTicker interface{ OnTick(now time.Time) }

type OnStdiner interface{ OnStdin(line string) }

type OnMsgOuter interface{ OnMsgOut(channel, msg string) }

type OnIPCer interface {
	OnIPC(senderID string, data []byte)
}

type OnFilterer interface {
	// OnFilter may rewrite or shrink payload; an empty return
	// suppresses the send.
	OnFilter(id uint64, channel string, payload []byte) []byte
}

type OnUnknowner interface {
	OnUnknown(event, origin string, params []string)
}
