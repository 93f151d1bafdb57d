package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/module"
)

type cmdModule struct {
	desc     module.Descriptor
	cmdCalls []string
	msgCalls []string
}

func (c *cmdModule) Descriptor() module.Descriptor { return c.desc }
func (c *cmdModule) OnCmd(channel, nick, arg string, cmdID int) {
	c.cmdCalls = append(c.cmdCalls, arg)
}
func (c *cmdModule) OnMsg(channel, nick, text string) {
	c.msgCalls = append(c.msgCalls, text)
}

func TestMatchCommandPrefersLongestAlias(t *testing.T) {
	short := &module.Record{Module: &cmdModule{desc: module.Descriptor{Name: "short", Commands: []string{"!m"}}}}
	long := &module.Record{Module: &cmdModule{desc: module.Descriptor{Name: "long", Commands: []string{"!modules"}}}}

	match := matchCommand([]*module.Record{short, long}, "!modules foo")
	require.NotNil(t, match)
	assert.Equal(t, "long", match.rec.Descriptor().Name)
	assert.Equal(t, " foo", match.arg)
}

func TestMatchCommandRequiresWordBoundary(t *testing.T) {
	rec := &module.Record{Module: &cmdModule{desc: module.Descriptor{Name: "karma", Commands: []string{"!karma"}}}}
	assert.Nil(t, matchCommand([]*module.Record{rec}, "!karmaplus five"))

	match := matchCommand([]*module.Record{rec}, "!karma five")
	require.NotNil(t, match)
	assert.Equal(t, " five", match.arg)
}

func TestMatchCommandNoMatch(t *testing.T) {
	rec := &module.Record{Module: &cmdModule{desc: module.Descriptor{Name: "karma", Commands: []string{"!karma"}}}}
	assert.Nil(t, matchCommand([]*module.Record{rec}, "hello there"))
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	channels := NewChannelRegistry(dir + "/core.data")
	cfg := &config.Config{RateLimitMS: 1, QueueMax: 10}
	return New(cfg, reg, channels)
}

func TestDispatchMsgInvokesCommandAndOnMsg(t *testing.T) {
	c := newTestCore(t)
	svc := c.Services()

	m := &cmdModule{desc: module.Descriptor{Name: "chans", Commands: []string{"!m"}, Flags: module.Global}}
	require.NoError(t, c.Registry.Register(m, "", time.Time{}, svc))

	c.Dispatch(Event{Kind: KindMsg, Channel: "#test", Nick: "alice", Text: "!m rest"})

	require.Len(t, m.cmdCalls, 1)
	assert.Equal(t, " rest", m.cmdCalls[0])
	require.Len(t, m.msgCalls, 1)
	assert.Equal(t, "!m rest", m.msgCalls[0])
}

func TestDispatchMsgSkipsDisabledChannelModule(t *testing.T) {
	c := newTestCore(t)
	svc := c.Services()

	m := &cmdModule{desc: module.Descriptor{Name: "karma", Commands: []string{"!karma"}}}
	require.NoError(t, c.Registry.Register(m, "", time.Time{}, svc))

	// Not Global and not enabled for #test, so neither callback fires.
	c.Dispatch(Event{Kind: KindMsg, Channel: "#test", Nick: "alice", Text: "!karma five"})
	assert.Empty(t, m.cmdCalls)
	assert.Empty(t, m.msgCalls)

	c.Channels.Enable("#test", "karma")
	c.Dispatch(Event{Kind: KindMsg, Channel: "#test", Nick: "alice", Text: "!karma five"})
	assert.Len(t, m.cmdCalls, 1)
	assert.Len(t, m.msgCalls, 1)
}
