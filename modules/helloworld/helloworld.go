// Package helloworld is relaybot's minimal example module, a direct
// port of original_source/src/mod_hello_world.c kept around as a
// reference implementation a new module author can copy.
package helloworld

import (
	"strings"

	"github.com/relaybot/relaybot/internal/module"
)

const cmdSayIt = 0

// Module re-expresses mod_hello_world.c's irc_mod_ctx: commands are
// declared as aliases under both configured control characters, the
// same CMD()/CMD1()/CMD2() expansion module.h used at compile time —
// here done once at construction since control chars are runtime
// config rather than compiled in.
type Module struct {
	svc      module.Services
	commands []string
}

func New(controlChar, controlChar2 string) *Module {
	aliases := controlChar + "helloworld"
	if controlChar2 != "" && controlChar2 != controlChar {
		aliases += " " + controlChar2 + "helloworld"
	}
	return &Module{commands: []string{aliases}}
}

func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:        "helloworld",
		Description: "Minimal example module.",
		Commands:    m.commands,
		CmdHelp:     []string{"<alternative noun> | Says hello world, or hello <alternative noun> if given."},
		Flags:       module.DefaultEnabled,
	}
}

func (m *Module) OnInit(svc module.Services) bool {
	m.svc = svc
	return true
}

func (m *Module) OnCmd(channel, nick, arg string, cmdID int) {
	if cmdID != cmdSayIt {
		return
	}
	if noun := strings.TrimPrefix(arg, " "); noun != "" && noun != arg {
		m.svc.SendMsg(channel, "Hello, "+noun+"!")
		return
	}
	m.svc.SendMsg(channel, "Hello world!")
}
