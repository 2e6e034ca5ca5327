// ABOUTME: Tracks which agents hold live event streams.
// ABOUTME: Registers connections, replaces stale ones, and routes pushes.

package presence

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotConnected indicates the agent has no live event stream.
var ErrNotConnected = errors.New("agent not connected")

// Info is a snapshot of one live connection.
type Info struct {
	AgentID     string
	TenantID    string
	ConnectedAt time.Time
}

// Manager coordinates the live event streams, one per agent. A reconnect
// replaces the previous stream, since a dropped client often reconnects
// before the server notices the old stream is dead.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger *slog.Logger

	// onConnect runs after a stream registers, before the transport
	// starts draining it. The dispatcher hooks in here to replay the
	// pending backlog into the fresh stream.
	onConnect func(conn *Connection)
}

// NewManager creates an empty presence registry.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]*Connection),
		logger: logger.With("component", "presence"),
	}
}

// OnConnect installs the hook invoked for every newly registered stream.
func (m *Manager) OnConnect(fn func(conn *Connection)) {
	m.onConnect = fn
}

// Register creates a live stream for the agent. Any existing stream for
// the same agent is closed and replaced.
func (m *Manager) Register(agentID, tenantID string) *Connection {
	conn := newConnection(agentID, tenantID)

	m.mu.Lock()
	if old, exists := m.conns[agentID]; exists {
		old.close()
		m.logger.Info("replacing stale event stream", "agent_id", agentID)
	}
	m.conns[agentID] = conn
	total := len(m.conns)
	m.mu.Unlock()

	m.logger.Info("agent connected", "agent_id", agentID, "tenant_id", tenantID, "total_connected", total)

	if m.onConnect != nil {
		m.onConnect(conn)
	}
	return conn
}

// Unregister closes and removes the agent's stream. If the registered
// stream is no longer conn, a reconnect already replaced it and the
// replacement is left alone.
func (m *Manager) Unregister(agentID string, conn *Connection) {
	m.mu.Lock()
	current, exists := m.conns[agentID]
	if exists && current == conn {
		delete(m.conns, agentID)
	}
	total := len(m.conns)
	m.mu.Unlock()

	conn.close()
	if exists && current == conn {
		m.logger.Info("agent disconnected", "agent_id", agentID, "total_connected", total)
	}
}

// Get retrieves the agent's live stream.
func (m *Manager) Get(agentID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[agentID]
	return conn, ok
}

// IsOnline reports whether the agent holds a live stream.
func (m *Manager) IsOnline(agentID string) bool {
	_, ok := m.Get(agentID)
	return ok
}

// Push queues an event onto the agent's stream. Returns ErrNotConnected
// when the agent has no stream.
func (m *Manager) Push(agentID string, evt Event) error {
	conn, ok := m.Get(agentID)
	if !ok {
		return ErrNotConnected
	}
	return conn.Push(evt)
}

// List snapshots all live connections.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.conns))
	for _, conn := range m.conns {
		infos = append(infos, Info{
			AgentID:     conn.AgentID,
			TenantID:    conn.TenantID,
			ConnectedAt: conn.ConnectedAt,
		})
	}
	return infos
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
