package connections

import (
	"sync"
	"time"

	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/gorilla/websocket"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Manager tracks live-view sockets and the conversation each one is watching
type Manager struct {
	mu          sync.RWMutex
	connections map[*websocket.Conn]string
	viewers     map[string]int
	timeouts    TimeoutConfig
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// TimeoutsFromConfig reads WS_PONG_WAIT and WS_WRITE_WAIT
func TimeoutsFromConfig() TimeoutConfig {
	pongWait := config.GetWSPongWait()
	return TimeoutConfig{
		PongWait:   pongWait,
		PingPeriod: (pongWait * 9) / 10,
		WriteWait:  config.GetWSWriteWait(),
	}
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		connections: make(map[*websocket.Conn]string),
		viewers:     make(map[string]int),
		timeouts:    timeouts,
	}
}

// AddConnection registers a new WebSocket connection that has not opened a conversation yet
func (m *Manager) AddConnection(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connections[conn]; !exists {
		m.connections[conn] = ""
	}
}

// Watch records that conn now views conversationID, releasing its previous one
func (m *Manager) Watch(conn *websocket.Conn, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(conn)
	m.connections[conn] = conversationID
	if conversationID != "" {
		m.viewers[conversationID]++
	}
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(conn)
	delete(m.connections, conn)
}

func (m *Manager) release(conn *websocket.Conn) {
	previous, exists := m.connections[conn]
	if !exists || previous == "" {
		return
	}
	if m.viewers[previous] <= 1 {
		delete(m.viewers, previous)
		return
	}
	m.viewers[previous]--
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// ViewerCount returns how many connections are watching conversationID
func (m *Manager) ViewerCount(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewers[conversationID]
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.connections[conn]
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
