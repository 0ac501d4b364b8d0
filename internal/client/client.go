package client

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/arcana-project/arcana/internal/identity"
	"github.com/arcana-project/arcana/internal/wire"
)

// UpdateQueueLen bounds the per-client live broadcast queue. A consumer
// that falls this far behind misses broadcast entries; durable delivery for
// disconnected clients goes through the missed packet queue instead.
const UpdateQueueLen = 10

// ErrNotConnected is returned by Send when the record currently has no
// attached socket.
var ErrNotConnected = errors.New("client is not connected")

// Client is the durable connection record for an authenticated player. The
// record itself is shared by reference between the read loop, the protocol
// dispatcher, and the broadcaster; individual fields are guarded separately
// so that sends, receives, and queue operations do not serialize against
// each other.
type Client struct {
	id     string
	player *identity.Player

	// connMu guards the socket reference, address, and connected flag.
	connMu    sync.RWMutex
	conn      net.Conn
	addr      string
	connected bool

	// writeMu serializes writes to the socket.
	writeMu sync.Mutex

	// missedMu guards the missed packet queue: everything generated for
	// this player while the record was disconnected, in FIFO order.
	// The queue is unbounded and never silently drops.
	missedMu sync.Mutex
	missed   []*wire.Packet

	// updates is the bounded, lossy queue feeding the live broadcast
	// writer for this client.
	updates   chan *wire.Packet
	closeOnce sync.Once
}

// New promotes a consumed socket into a connection record owned by player.
func New(conn net.Conn, addr string, player *identity.Player) *Client {
	return &Client{
		id:        player.ID,
		player:    player,
		conn:      conn,
		addr:      addr,
		connected: true,
		updates:   make(chan *wire.Packet, UpdateQueueLen),
	}
}

func (c *Client) ID() string               { return c.id }
func (c *Client) Player() *identity.Player { return c.player }

func (c *Client) Addr() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.addr
}

func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Conn returns the currently attached socket, or nil when disconnected.
// The read loop uses this to detect that the socket it was reading from
// has been replaced.
func (c *Client) Conn() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// Send writes data to the attached socket in full. Concurrent senders are
// serialized; a send does not block queue operations or reads. Sending
// requires an attached socket but not a connected record, so the reconnect
// flush can drain onto the new socket before the record reads as connected.
func (c *Client) Send(data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sent := 0
	for sent < len(data) {
		n, err := conn.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("failed to send to client %v: %w", c.Addr(), err)
		}
		sent += n
	}
	return nil
}

// Disconnect flips the record to disconnected and drops the socket. The
// record stays alive so a later reconnect can find it; only the registry
// removes records.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return
	}
	c.connected = false
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Reattach replaces the record's socket with a newly accepted one. The
// record stays marked disconnected until MarkConnected so that the missed
// packet backlog can be flushed onto the new socket first.
func (c *Client) Reattach(conn net.Conn, addr string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.addr = addr
}

// MarkConnected flips the record to connected once the reconnect flush has
// drained. A record whose socket was dropped mid-flush stays disconnected.
func (c *Client) MarkConnected() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.connected = true
	}
}

// QueueMissed appends a packet to the missed packet queue.
func (c *Client) QueueMissed(packet *wire.Packet) {
	c.missedMu.Lock()
	defer c.missedMu.Unlock()
	c.missed = append(c.missed, packet)
}

// DequeueMissed pops the oldest missed packet, reporting false when the
// queue is empty.
func (c *Client) DequeueMissed() (*wire.Packet, bool) {
	c.missedMu.Lock()
	defer c.missedMu.Unlock()

	if len(c.missed) == 0 {
		return nil, false
	}
	packet := c.missed[0]
	c.missed = c.missed[1:]
	return packet, true
}

// MissedCount returns the number of queued missed packets.
func (c *Client) MissedCount() int {
	c.missedMu.Lock()
	defer c.missedMu.Unlock()
	return len(c.missed)
}

// TryPushUpdate offers a packet to the live broadcast queue without
// blocking, reporting whether it was accepted. Dropping under backpressure
// is expected here.
func (c *Client) TryPushUpdate(packet *wire.Packet) bool {
	select {
	case c.updates <- packet:
		return true
	default:
		return false
	}
}

// Updates exposes the live broadcast queue to the client's writer goroutine.
func (c *Client) Updates() <-chan *wire.Packet { return c.updates }

// CloseUpdates terminates the live broadcast queue. Called exactly once,
// when the record is removed from the registry.
func (c *Client) CloseUpdates() {
	c.closeOnce.Do(func() { close(c.updates) })
}
