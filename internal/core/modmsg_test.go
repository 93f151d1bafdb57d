package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/module"
)

type modMsgResponder struct {
	desc     module.Descriptor
	received []module.ModMsg
	senders  []string
}

func (m *modMsgResponder) Descriptor() module.Descriptor { return m.desc }
func (m *modMsgResponder) OnModMsg(sender string, msg module.ModMsg) {
	m.senders = append(m.senders, sender)
	m.received = append(m.received, msg)
	if msg.Callback != nil {
		msg.Callback("pong", msg.UserDatum)
	}
}

func TestSendModMsgFansOutToEveryOtherModule(t *testing.T) {
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	c := New(&config.Config{RateLimitMS: 1, QueueMax: 10}, reg, NewChannelRegistry(dir+"/core.data"))
	svc := c.Services()

	a := &modMsgResponder{desc: module.Descriptor{Name: "a"}}
	b := &modMsgResponder{desc: module.Descriptor{Name: "b"}}
	require.NoError(t, reg.Register(a, "", time.Time{}, svc))
	require.NoError(t, reg.Register(b, "", time.Time{}, svc))

	var result interface{}
	c.SendModMsg(module.ModMsg{
		Cmd: "ping",
		Callback: func(r, userDatum interface{}) interface{} {
			result = r
			return nil
		},
	})

	assert.Equal(t, "pong", result)
	assert.Len(t, a.received, 1)
	assert.Len(t, b.received, 1)
}

func TestSendModMsgExcludesSender(t *testing.T) {
	dir := t.TempDir()
	reg, err := module.NewRegistry(dir+"/modules", dir+"/data")
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	c := New(&config.Config{RateLimitMS: 1, QueueMax: 10}, reg, NewChannelRegistry(dir+"/core.data"))
	svc := c.Services()

	sender := &modMsgSelfSender{desc: module.Descriptor{Name: "self"}, core: c}
	observer := &modMsgResponder{desc: module.Descriptor{Name: "observer"}}
	require.NoError(t, reg.Register(sender, "", time.Time{}, svc))
	require.NoError(t, reg.Register(observer, "", time.Time{}, svc))

	sender.fire()

	assert.Empty(t, sender.selfReceived)
	assert.Len(t, observer.received, 1)
	assert.Equal(t, []string{"self"}, observer.senders)
}

// modMsgSelfSender exercises SendModMsg from inside an invoked callback,
// confirming attribution comes off the call stack rather than a passed
// parameter.
type modMsgSelfSender struct {
	desc         module.Descriptor
	core         *Core
	selfReceived []module.ModMsg
}

func (s *modMsgSelfSender) Descriptor() module.Descriptor { return s.desc }
func (s *modMsgSelfSender) OnModMsg(sender string, msg module.ModMsg) {
	s.selfReceived = append(s.selfReceived, msg)
}

func (s *modMsgSelfSender) fire() {
	rec, _ := s.core.Registry.Lookup("self")
	s.core.invoke(rec, func() {
		s.core.SendModMsg(module.ModMsg{Cmd: "announce"})
	})
}
