package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/module"
)

// greeterModule is a minimal stand-in for the helloworld built-in, used
// here instead of importing modules/helloworld to keep core's tests
// free of a dependency on its own consumers.
type greeterModule struct {
	svc module.Services
}

func (g *greeterModule) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:     "greeter",
		Commands: []string{"!hi"},
		Flags:    module.DefaultEnabled,
	}
}
func (g *greeterModule) OnInit(svc module.Services) bool { g.svc = svc; return true }
func (g *greeterModule) OnCmd(channel, nick, arg string, cmdID int) {
	g.svc.SendMsg(channel, "hi "+nick)
}

// loggingFilter records the id of every outbound line and passes the
// payload through unchanged, just to prove the filter chain runs before
// delivery in an end-to-end path.
type loggingFilter struct {
	seen []uint64
}

func (l *loggingFilter) Descriptor() module.Descriptor {
	return module.Descriptor{Name: "logger", Flags: module.Global}
}
func (l *loggingFilter) OnFilter(id uint64, channel string, payload []byte) []byte {
	l.seen = append(l.seen, id)
	return payload
}

func TestEndToEndJoinEnableCommandAndSave(t *testing.T) {
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	channels := NewChannelRegistry(dir + "/core.data")
	c := New(&config.Config{RateLimitMS: 1, QueueMax: 10}, reg, channels)
	svc := c.Services()

	greeter := &greeterModule{}
	logger := &loggingFilter{}
	require.NoError(t, reg.Register(greeter, "", time.Time{}, svc))
	require.NoError(t, reg.Register(logger, "", time.Time{}, svc))

	sender := newRecordingSender()
	c.Sender = sender

	// A brand new channel should auto-enable DefaultEnabled modules on join.
	c.Dispatch(Event{Kind: KindJoin, Channel: "#fresh", Nick: "relaybot"})
	assert.True(t, channels.Enabled("#fresh", "greeter", false))

	c.Dispatch(Event{Kind: KindMsg, Channel: "#fresh", Nick: "alice", Text: "!hi there"})
	require.Len(t, sender.lines, 1)
	assert.Equal(t, "PRIVMSG #fresh :hi alice", sender.lines[0])
	assert.Len(t, logger.seen, 1)

	// Changing enablement marks the registry dirty; the tick handler
	// must persist it without any explicit Save call from the test.
	channels.Disable("#fresh", "greeter")
	assert.True(t, channels.Dirty())
	c.Dispatch(Event{Kind: KindTick, Now: time.Now()})
	assert.False(t, channels.Dirty())

	reloaded := NewChannelRegistry(dir + "/core.data")
	require.NoError(t, reloaded.Load())
	assert.False(t, reloaded.Enabled("#fresh", "greeter", false))
}

func TestEndToEndCommandGatedByChannelEnablement(t *testing.T) {
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	channels := NewChannelRegistry(dir + "/core.data")
	c := New(&config.Config{RateLimitMS: 1, QueueMax: 10}, reg, channels)
	svc := c.Services()

	greeter := &greeterModule{}
	require.NoError(t, reg.Register(greeter, "", time.Time{}, svc))
	sender := newRecordingSender()
	c.Sender = sender

	// greeter is DefaultEnabled but that only applies at join time; a
	// channel the bot never "joined" in this test has no enabled set.
	c.Dispatch(Event{Kind: KindMsg, Channel: "#untouched", Nick: "alice", Text: "!hi there"})
	assert.Empty(t, sender.lines)
}
