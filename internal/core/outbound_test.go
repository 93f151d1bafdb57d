package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/module"
)

type recordingSender struct {
	mu    chan struct{}
	lines []string
}

func newRecordingSender() *recordingSender { return &recordingSender{mu: make(chan struct{}, 1)} }

func (s *recordingSender) SendRaw(line string) error {
	s.lines = append(s.lines, line)
	return nil
}
func (s *recordingSender) Join(string) error { return nil }
func (s *recordingSender) Part(string) error { return nil }

func newOutboundTestCore(t *testing.T, rateLimitMS int) (*Core, *recordingSender) {
	t.Helper()
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	channels := NewChannelRegistry(dir + "/core.data")
	cfg := &config.Config{RateLimitMS: rateLimitMS, QueueMax: 10}
	c := New(cfg, reg, channels)
	sender := newRecordingSender()
	c.Sender = sender
	return c, sender
}

func TestOutboundIDsAreMonotonic(t *testing.T) {
	c, _ := newOutboundTestCore(t, 0)
	id1 := c.outbox.SendMsg("#a", "one", "")
	id2 := c.outbox.SendMsg("#b", "two", "")
	assert.Greater(t, id2, id1)
}

func TestOutboundDeliversImmediatelyWhenRateAllows(t *testing.T) {
	c, sender := newOutboundTestCore(t, 0)
	c.outbox.SendMsg("#chan", "hi", "")
	require.Len(t, sender.lines, 1)
	assert.Equal(t, "PRIVMSG #chan :hi", sender.lines[0])
}

func TestOutboundQueuesBeyondRateLimit(t *testing.T) {
	c, sender := newOutboundTestCore(t, 1000)
	c.outbox.SendMsg("#chan", "first", "")
	c.outbox.SendMsg("#chan", "second", "")

	require.Len(t, sender.lines, 1, "second send should be queued, not delivered immediately")

	tq := c.outbox.targetFor("#chan")
	require.Len(t, tq.backlog, 1)
}

func TestOutboundFIFOPerTarget(t *testing.T) {
	c, sender := newOutboundTestCore(t, 20)
	c.outbox.SendMsg("#chan", "first", "")
	c.outbox.SendMsg("#chan", "second", "")
	c.outbox.SendMsg("#chan", "third", "")
	require.Len(t, sender.lines, 1)

	time.Sleep(25 * time.Millisecond)
	c.outbox.tick()
	require.Len(t, sender.lines, 2)
	assert.Contains(t, sender.lines[1], "second")

	time.Sleep(25 * time.Millisecond)
	c.outbox.tick()
	require.Len(t, sender.lines, 3)
	assert.Contains(t, sender.lines[2], "third")
}

func TestOutboundFilterCanSuppress(t *testing.T) {
	c, sender := newOutboundTestCore(t, 0)
	m := &suppressingFilter{}
	require.NoError(t, c.Registry.Register(m, "", time.Time{}, c.Services()))

	id := c.outbox.SendMsg("#chan", "secret", "")
	assert.NotZero(t, id)
	assert.Empty(t, sender.lines)
}

func TestOutboundFilterCanRewrite(t *testing.T) {
	c, sender := newOutboundTestCore(t, 0)
	m := &rewritingFilter{}
	require.NoError(t, c.Registry.Register(m, "", time.Time{}, c.Services()))

	c.outbox.SendMsg("#chan", "hello", "")
	require.Len(t, sender.lines, 1)
	assert.True(t, strings.Contains(sender.lines[0], "REDACTED"))
}

func TestOutboundRawBypassesChannelRateKey(t *testing.T) {
	c, sender := newOutboundTestCore(t, 1000)
	c.outbox.SendMsg("#chan", "first", "")
	c.outbox.SendRaw("PING :x", "")
	require.Len(t, sender.lines, 2)
	assert.Equal(t, "PING :x", sender.lines[1])
}

type suppressingFilter struct{}

func (s *suppressingFilter) Descriptor() module.Descriptor {
	return module.Descriptor{Name: "suppressor", Flags: module.Global}
}
func (s *suppressingFilter) OnFilter(id uint64, channel string, payload []byte) []byte {
	return nil
}

type rewritingFilter struct{}

func (r *rewritingFilter) Descriptor() module.Descriptor {
	return module.Descriptor{Name: "rewriter", Flags: module.Global}
}
func (r *rewritingFilter) OnFilter(id uint64, channel string, payload []byte) []byte {
	return []byte(strings.ReplaceAll(string(payload), "hello", "REDACTED"))
}
