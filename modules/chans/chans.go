// Package chans is relaybot's built-in administration module: per
// channel module enable/disable, module listing and info, and
// join/leave. It is a straight port of original_source/src/mod_core.c
// onto module.Services — it has no special access to the core beyond
// what any third-party module could use, which is the point of the
// Services surface.
package chans

import (
	"fmt"
	"strings"

	"github.com/relaybot/relaybot/internal/module"
)

const (
	cmdModules = iota
	cmdModOn
	cmdModOff
	cmdModInfo
	cmdJoin
	cmdLeave
)

// Module needs to know the bot's configured admin nick to gate
// !join/!leave/!mon/!moff the way core_cmd's is_wlist/is_admin checks
// did (mod_core.c:150-151); inso_is_wlist/inso_is_admin round-tripped
// through a mod_msg to ask "core" itself, which is redundant here
// since this *is* core's port.
type Module struct {
	svc      module.Services
	admin    string
	botOwner string
}

func New(admin, botOwner string) *Module {
	return &Module{admin: admin, botOwner: botOwner}
}

func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:        "chans",
		Description: "Manages per-channel permissions of other modules and joins/leaves channels on command.",
		Priority:    10000,
		Flags:       module.Global,
		Commands: []string{
			"!m !modules",
			"!mon !modon",
			"!moff !modoff",
			"!minfo !modinfo",
			"!join",
			"!leave",
		},
		CmdHelp: []string{
			"| Displays which modules are enabled/disabled for the current channel.",
			"<mod> | Enables the module named <mod>.",
			"<mod> | Disables the module named <mod>.",
			"<mod> | Shows the description for the <mod> module.",
			"<chan> | Instructs the bot to join <chan>",
			"| Leaves the current channel",
		},
		HelpURL: "https://insobot.handmade.network/forums/t/2385",
	}
}

func (m *Module) OnInit(svc module.Services) bool {
	m.svc = svc
	return true
}

// isSelfChannel reports whether nick is speaking from their own
// "#nick" channel, which the original treats the same as whitelisted
// (mod_core.c's `strcasecmp(chan+1, name) == 0`).
func isSelfChannel(channel, nick string) bool {
	return strings.EqualFold(strings.TrimPrefix(channel, "#"), nick)
}

func (m *Module) isWlist(channel, nick string) bool {
	return isSelfChannel(channel, nick) || (m.admin != "" && nick == m.admin)
}

func (m *Module) isAdmin(channel, nick string) bool {
	return (m.admin != "" && nick == m.admin) || (m.botOwner != "" && nick == m.botOwner)
}

func (m *Module) OnCmd(channel, nick, arg string, cmdID int) {
	if !m.isWlist(channel, nick) {
		return
	}
	isAdmin := m.isAdmin(channel, nick)
	rest := strings.TrimPrefix(arg, " ")

	switch cmdID {
	case cmdModules:
		var b strings.Builder
		fmt.Fprintf(&b, "Modules for %s: ", channel)
		for _, d := range m.svc.GetModules(true) {
			box := "[ ]"
			if m.svc.ModuleEnabled(channel, d.Name) {
				box = "[x]"
			}
			fmt.Fprintf(&b, "%s %s, ", box, d.Name)
		}
		m.svc.SendMsg(channel, strings.TrimSuffix(b.String(), ", "))

	case cmdModOn:
		if rest == "" {
			m.svc.SendMsg(channel, nick+": Which module?")
			return
		}
		if !m.moduleExists(rest) {
			m.svc.SendMsg(channel, nick+": I haven't heard of that module...")
			return
		}
		if m.svc.ModuleEnabled(channel, rest) {
			m.svc.SendMsg(channel, nick+": That module is already enabled here!")
			return
		}
		m.svc.EnableModule(channel, rest)
		m.svc.SendMsg(channel, nick+": Enabled module "+rest+".")

	case cmdModOff:
		if rest == "" {
			m.svc.SendMsg(channel, nick+": Which module?")
			return
		}
		if !m.moduleExists(rest) {
			m.svc.SendMsg(channel, nick+": I haven't heard of that module...")
			return
		}
		if !m.svc.ModuleEnabled(channel, rest) {
			m.svc.SendMsg(channel, nick+": That module is already disabled here!")
			return
		}
		m.svc.DisableModule(channel, rest)
		m.svc.SendMsg(channel, nick+": Disabled module "+rest+".")

	case cmdModInfo:
		if rest == "" {
			m.svc.SendMsg(channel, nick+": Which module?")
			return
		}
		for _, d := range m.svc.GetModules(false) {
			if d.Name == rest {
				m.svc.SendMsg(channel, fmt.Sprintf("%s: %s: %s", nick, d.Name, d.Description))
				return
			}
		}
		m.svc.SendMsg(channel, nick+": I haven't heard of that module...")

	case cmdJoin:
		if !isAdmin {
			return
		}
		if rest == "" {
			m.svc.SendMsg(channel, nick+": Join where exactly?")
			return
		}
		m.svc.Join(rest)
		m.svc.SendMsg(channel, nick+": Joining "+rest+".")

	case cmdLeave:
		if !isAdmin {
			return
		}
		m.svc.SendMsg(channel, "Goodbye, "+nick+".")
		m.svc.Part(channel)
	}
}

func (m *Module) moduleExists(name string) bool {
	for _, d := range m.svc.GetModules(true) {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (m *Module) OnModMsg(sender string, msg module.ModMsg) {
	switch msg.Cmd {
	case "check_whitelist", "check_admin":
		nick, _ := msg.Arg.(string)
		if msg.Callback != nil {
			msg.Callback(m.admin != "" && nick == m.admin, msg.UserDatum)
		}
	case "check_chan_enabled":
		channel, _ := msg.Arg.(string)
		if msg.Callback != nil {
			msg.Callback(m.svc.ModuleEnabled(channel, sender), msg.UserDatum)
		}
	}
}
