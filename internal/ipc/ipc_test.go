package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybot/relaybot/internal/config"
)

func TestFrameUnframeRoundTrip(t *testing.T) {
	framed := frame("peer-1", []byte("payload bytes"))
	sender, payload, ok := unframe(framed)
	require.True(t, ok)
	assert.Equal(t, "peer-1", sender)
	assert.Equal(t, "payload bytes", string(payload))
}

func TestUnframeRejectsMissingSeparator(t *testing.T) {
	_, _, ok := unframe([]byte("no separator here"))
	assert.False(t, ok)
}

func TestUnframeRejectsOversizePayload(t *testing.T) {
	big := make([]byte, MaxDatagram+1)
	framed := frame("id", big)
	_, _, ok := unframe(framed)
	assert.False(t, ok)
}

func TestBusSendUnicast(t *testing.T) {
	a, err := New(&config.Config{InstanceID: "node-a"})
	require.NoError(t, err)
	defer a.Close()

	b, err := New(&config.Config{InstanceID: "node-b"})
	require.NoError(t, err)
	defer b.Close()

	a.AddPeer("node-b", socketPath("node-b"))
	go b.Run()

	require.NoError(t, a.Send("node-b", []byte("hello")))

	select {
	case msg := <-b.Incoming:
		assert.Equal(t, "node-a", msg.SenderID)
		assert.Equal(t, "hello", string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ipc message")
	}
}

func TestBusSendToUnknownPeerErrors(t *testing.T) {
	a, err := New(&config.Config{InstanceID: "lonely"})
	require.NoError(t, err)
	defer a.Close()

	err = a.Send("nobody", []byte("x"))
	assert.Error(t, err)
}

func TestBusRejectsOversizePayload(t *testing.T) {
	a, err := New(&config.Config{InstanceID: "sizer"})
	require.NoError(t, err)
	defer a.Close()

	err = a.Send("0", make([]byte, MaxDatagram+1))
	assert.Error(t, err)
}
