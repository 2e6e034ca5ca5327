// ABOUTME: Represents a single agent's live event stream.
// ABOUTME: Buffers pushed events and reports overflow instead of blocking.

package presence

import (
	"errors"
	"sync"
	"time"
)

// ErrStreamFull indicates the connection's event buffer is full. The push
// is dropped; durable state is unaffected and a later pass retries.
var ErrStreamFull = errors.New("event stream full")

// ErrStreamClosed indicates the connection was unregistered or replaced.
var ErrStreamClosed = errors.New("event stream closed")

// eventBuffer is the per-connection channel capacity.
const eventBuffer = 16

// Event is one item flowing to an agent's event stream.
type Event struct {
	Type string
	Data any
}

// Connection is one agent's registered event stream. Events are consumed
// from Events() by the transport that owns the connection.
type Connection struct {
	AgentID     string
	TenantID    string
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	events chan Event
}

func newConnection(agentID, tenantID string) *Connection {
	return &Connection{
		AgentID:     agentID,
		TenantID:    tenantID,
		ConnectedAt: time.Now().UTC(),
		events:      make(chan Event, eventBuffer),
	}
}

// Push queues an event for the stream without blocking. Returns
// ErrStreamFull when the consumer has fallen too far behind, and
// ErrStreamClosed after the connection is torn down.
func (c *Connection) Push(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStreamClosed
	}
	select {
	case c.events <- evt:
		return nil
	default:
		return ErrStreamFull
	}
}

// Events returns the stream the transport reads from. The channel closes
// when the connection is unregistered or replaced.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// close shuts the event channel exactly once.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
