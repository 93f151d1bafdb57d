package core

import (
	"regexp"

	"github.com/relaybot/relaybot/internal/module"
	"github.com/relaybot/relaybot/internal/rlog"
)

// serviceFacade adapts *Core to module.Services. It is a type
// conversion (not a wrapping struct) so every module shares the exact
// same Core state; "the currently executing module" is resolved from
// the call stack on every call, matching original_source/module.h's
// IRCCoreCtx (a single shared vtable, not one instance per module).
type serviceFacade Core

func (s *serviceFacade) core() *Core { return (*Core)(s) }

func (s *serviceFacade) Username() string { return s.core().Cfg.Nick }

// GetDataFile returns the currently executing module's data file path.
// Calling this outside a dispatched callback is undefined; we return ""
// rather than panicking, since the core never raises through a module
// boundary.
func (s *serviceFacade) GetDataFile() string {
	rec := s.core().currentModule()
	if rec == nil {
		return ""
	}
	return rec.DataFile
}

func (s *serviceFacade) GetModules(channelOnly bool) []module.Descriptor {
	recs := s.core().Registry.Snapshot(channelOnly)
	out := make([]module.Descriptor, len(recs))
	for i, r := range recs {
		out[i] = r.Descriptor()
	}
	return out
}

func (s *serviceFacade) GetChannels() []string { return s.core().GetChannels() }

func (s *serviceFacade) GetNicks(channel string) []string { return s.core().GetNicks(channel) }

func (s *serviceFacade) Join(channel string) {
	s.core().Channels.SetShouldJoin(channel, true)
	if s.core().Sender != nil {
		if err := s.core().Sender.Join(channel); err != nil {
			rlog.Warn("join %s: %v", channel, err)
		}
	}
}

func (s *serviceFacade) Part(channel string) {
	s.core().Channels.SetShouldJoin(channel, false)
	if s.core().Sender != nil {
		if err := s.core().Sender.Part(channel); err != nil {
			rlog.Warn("part %s: %v", channel, err)
		}
	}
}

func (s *serviceFacade) EnableModule(channel, name string) {
	s.core().Channels.Enable(channel, name)
}

func (s *serviceFacade) DisableModule(channel, name string) {
	s.core().Channels.Disable(channel, name)
}

func (s *serviceFacade) ModuleEnabled(channel, name string) bool {
	if rec, ok := s.core().Registry.Lookup(name); ok && rec.Descriptor().Is(module.Global) {
		return true
	}
	return s.core().Channels.Enabled(channel, name, false)
}

func (s *serviceFacade) EnabledModules(channel string) []string {
	return s.core().Channels.EnabledModuleNames(channel)
}

func (s *serviceFacade) SendMsg(channel, text string) uint64 {
	return s.core().outbox.SendMsg(channel, text, s.attribution())
}

func (s *serviceFacade) SendRaw(raw string) uint64 {
	return s.core().outbox.SendRaw(raw, s.attribution())
}

func (s *serviceFacade) SendIPC(targetID string, data []byte) {
	if s.core().IPC == nil {
		rlog.Warn("send_ipc called but no IPC bus configured")
		return
	}
	if err := s.core().IPC.Send(targetID, data); err != nil {
		rlog.Warn("send_ipc: %v", err)
	}
}

func (s *serviceFacade) SendModMsg(msg module.ModMsg) { s.core().SendModMsg(msg) }

func (s *serviceFacade) SaveMe() {
	rec := s.core().currentModule()
	if rec == nil {
		rlog.Warn("save_me called outside a dispatched callback")
		return
	}
	if err := s.core().Registry.Save(rec); err != nil {
		rlog.Module(rec.Descriptor().Name, "save failed: %v", err)
	}
}

func (s *serviceFacade) Log(format string, args ...interface{}) {
	rec := s.core().currentModule()
	name := "core"
	if rec != nil {
		name = rec.Descriptor().Name
	}
	rlog.Module(name, format, args...)
}

var colorCodePattern = regexp.MustCompile("\x03[0-9]{0,2}(,[0-9]{1,2})?|[\x02\x0f\x16\x1d\x1f]")

func (s *serviceFacade) StripColors(msg string) string {
	return colorCodePattern.ReplaceAllString(msg, "")
}

func (s *serviceFacade) Responded() bool { return s.core().respondedThisDispatch }

func (s *serviceFacade) GenEvent(kind module.CallbackID, args ...interface{}) {
	s.core().GenEvent(kind, args...)
}

// attribution returns the name of the module currently on the call
// stack, used to tag outbound messages with their originator.
func (s *serviceFacade) attribution() string {
	if rec := s.core().currentModule(); rec != nil {
		return rec.Descriptor().Name
	}
	return ""
}
