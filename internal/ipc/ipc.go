// Package ipc is a local datagram endpoint for broadcasting/unicasting
// to peer instances of relaybot. Unlike minimega's meshage (a routed
// mesh over persistent TCP connections with gossip-based topology
// discovery), this bus is deliberately the simplest thing that gets
// the job done: one Unix datagram socket per process, a small static
// peer table, and no routing — message boundaries are preserved by the
// datagram socket itself, so no length-prefixing is needed the way a
// stream transport would require.
package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/rlog"
)

// MaxDatagram is the upper bound on a single IPC payload.
const MaxDatagram = 64 * 1024

// Message is what Bus delivers to the main loop for on_ipc dispatch.
type Message struct {
	SenderID string
	Data     []byte
}

type Bus struct {
	ID   string
	path string
	conn *net.UnixConn

	mu    sync.Mutex
	peers map[string]string // peer id -> socket path

	Incoming chan Message
}

func socketPath(id string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("relaybot-%s.ipc", id))
}

// New binds the local endpoint and registers any statically configured
// peers. The local socket is removed and recreated if a stale one is
// left over from a previous run (the process died without cleaning
// up).
func New(cfg *config.Config) (*Bus, error) {
	id := cfg.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	path := socketPath(id)
	os.Remove(path)

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("resolve ipc socket: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("listen ipc socket: %w", err)
	}

	b := &Bus{
		ID:       id,
		path:     path,
		conn:     conn,
		peers:    make(map[string]string),
		Incoming: make(chan Message, 64),
	}
	for peerID, peerPath := range cfg.IPCPeers {
		b.AddPeer(peerID, peerPath)
	}
	return b, nil
}

func (b *Bus) AddPeer(id, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[id] = path
}

// Run reads datagrams until the socket is closed, pushing each onto
// Incoming for the main loop to turn into a KindIPC dispatch. It never
// invokes a module callback directly, preserving the single-goroutine
// dispatch rule.
func (b *Bus) Run() {
	buf := make([]byte, MaxDatagram+headerCap)
	for {
		n, _, err := b.conn.ReadFromUnix(buf)
		if err != nil {
			close(b.Incoming)
			return
		}
		senderID, payload, ok := unframe(buf[:n])
		if !ok {
			rlog.Warn("ipc: dropping malformed or oversize datagram (%d bytes)", n)
			continue
		}
		data := make([]byte, len(payload))
		copy(data, payload)
		b.Incoming <- Message{SenderID: senderID, Data: data}
	}
}

// Every datagram is framed as "<senderID>\x00<payload>" so peers can
// attribute on_ipc callbacks without a separate handshake protocol;
// the 0x00 separator is safe because peer ids (INSOBOT_ID / uuid) never
// contain it.
const headerCap = 64

func frame(senderID string, data []byte) []byte {
	out := make([]byte, 0, len(senderID)+1+len(data))
	out = append(out, senderID...)
	out = append(out, 0)
	out = append(out, data...)
	return out
}

func unframe(raw []byte) (senderID string, payload []byte, ok bool) {
	for i, b := range raw {
		if b == 0 {
			payload = raw[i+1:]
			if len(payload) > MaxDatagram {
				return "", nil, false
			}
			return string(raw[:i]), payload, true
		}
	}
	return "", nil, false
}

// Send implements send_ipc: target "" or "0" broadcasts to every
// configured peer, otherwise it unicasts.
func (b *Bus) Send(targetID string, data []byte) error {
	if len(data) > MaxDatagram {
		return fmt.Errorf("ipc payload too large: %d bytes (max %d)", len(data), MaxDatagram)
	}

	framed := frame(b.ID, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	if targetID == "" || targetID == "0" {
		var firstErr error
		for _, path := range b.peers {
			if err := b.sendTo(path, framed); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	path, ok := b.peers[targetID]
	if !ok {
		return fmt.Errorf("ipc: unknown peer %q", targetID)
	}
	return b.sendTo(path, framed)
}

func (b *Bus) sendTo(path string, data []byte) error {
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return err
	}
	_, err = b.conn.WriteToUnix(data, addr)
	return err
}

func (b *Bus) Close() error {
	err := b.conn.Close()
	os.Remove(b.path)
	return err
}
