// Package client defines the per-connection state tracked by the server:
// the unauthenticated temporary handle a socket starts out as, the durable
// connection record it is promoted to, and the registry that maps player
// ids to live records.
package client

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ErrAlreadyConsumed is returned when a temporary connection is consumed
// more than once. Promotion must transfer socket ownership exactly once;
// a second consumer indicates an internal bookkeeping bug.
var ErrAlreadyConsumed = errors.New("temporary connection already consumed")

// Temporary wraps an accepted socket before the client behind it has
// authenticated. It holds no player identity and no packet queue.
type Temporary struct {
	// Tag identifies this connection attempt in logs until a player id
	// is known.
	Tag string

	mu       sync.Mutex
	conn     net.Conn
	addr     string
	consumed bool
}

func NewTemporary(conn net.Conn) *Temporary {
	return &Temporary{
		Tag:  uuid.NewString(),
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
}

func (t *Temporary) Addr() string { return t.addr }

// Read consumes bytes from the underlying socket. Once the handle has been
// consumed the socket belongs to the promoted client and reads fail with
// ErrAlreadyConsumed.
func (t *Temporary) Read(b []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return 0, ErrAlreadyConsumed
	}
	return conn.Read(b)
}

// Write sends bytes on the underlying socket, used for error responses to
// clients that never authenticate. Fails with ErrAlreadyConsumed once
// ownership has been transferred.
func (t *Temporary) Write(b []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return 0, ErrAlreadyConsumed
	}
	return conn.Write(b)
}

// Consume transfers ownership of the underlying socket to the caller. The
// second and any further calls fail with ErrAlreadyConsumed and return no
// connection.
func (t *Temporary) Consume() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.consumed {
		return nil, ErrAlreadyConsumed
	}
	t.consumed = true

	conn := t.conn
	t.conn = nil
	return conn, nil
}

// Close shuts the socket down if ownership was never transferred.
func (t *Temporary) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.consumed || t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
