package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/gorilla/websocket"
)

const (
	monitorWriteWait  = 10 * time.Second
	monitorPongWait   = 60 * time.Second
	monitorPingPeriod = (monitorPongWait * 9) / 10
)

// ConsoleStats counts console sessions by lifecycle state.
type ConsoleStats struct {
	Total         int `json:"total"`
	Authenticated int `json:"authenticated"`
	AwaitingOtp   int `json:"awaitingOtp"`
	Active        int `json:"active"`
	Dormant       int `json:"dormant"`
}

// StatsSource reports the current console session counts.
type StatsSource interface {
	ConsoleStats() ConsoleStats
}

// MonitorPayload is sent to every monitor client on each tick.
type MonitorPayload struct {
	Sessions    ConsoleStats         `json:"sessions"`
	Performance performance.Snapshot `json:"performance"`
	Timestamp   time.Time            `json:"timestamp"`
}

// MonitorClient is a single connected operator dashboard.
type MonitorClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewMonitorClient wraps conn with a buffered send queue.
func NewMonitorClient(conn *websocket.Conn) *MonitorClient {
	return &MonitorClient{Conn: conn, Send: make(chan []byte, 8)}
}

// MonitorBroadcaster pushes session and performance stats to operator
// dashboards over websockets.
type MonitorBroadcaster struct {
	clients    map[*MonitorClient]bool
	register   chan *MonitorClient
	unregister chan *MonitorClient
	stats      StatsSource
	tracker    *performance.Tracker
	interval   time.Duration
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewMonitorBroadcaster creates a broadcaster that ticks every interval.
func NewMonitorBroadcaster(stats StatsSource, tracker *performance.Tracker, interval time.Duration, logger *logging.ChanneledLogger) *MonitorBroadcaster {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &MonitorBroadcaster{
		clients:    make(map[*MonitorClient]bool),
		register:   make(chan *MonitorClient),
		unregister: make(chan *MonitorClient),
		stats:      stats,
		tracker:    tracker,
		interval:   interval,
		logger:     logger,
	}
}

// Run is the broadcaster's main loop. It returns when done is closed.
func (b *MonitorBroadcaster) Run(done <-chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			b.mu.Lock()
			for client := range b.clients {
				close(client.Send)
				delete(b.clients, client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.Notify().Info("Monitor client registered", "clients", b.ClientCount())
			b.sendTo(client)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			b.logger.Notify().Info("Monitor client unregistered", "clients", b.ClientCount())

		case <-ticker.C:
			b.broadcast()
		}
	}
}

// Register queues a client for registration.
func (b *MonitorBroadcaster) Register(client *MonitorClient) {
	b.register <- client
}

// Unregister queues a client for unregistration.
func (b *MonitorBroadcaster) Unregister(client *MonitorClient) {
	b.unregister <- client
}

// ClientCount returns the number of connected dashboards.
func (b *MonitorBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Payload builds the current monitor payload.
func (b *MonitorBroadcaster) Payload() MonitorPayload {
	p := MonitorPayload{Timestamp: time.Now().UTC()}
	if b.stats != nil {
		p.Sessions = b.stats.ConsoleStats()
	}
	if b.tracker != nil {
		p.Performance = b.tracker.Snapshot()
	}
	return p
}

func (b *MonitorBroadcaster) message() ([]byte, bool) {
	message, err := json.Marshal(b.Payload())
	if err != nil {
		b.logger.Notify().Error("Failed to encode monitor payload", "error", err.Error())
		return nil, false
	}
	return message, true
}

func (b *MonitorBroadcaster) sendTo(client *MonitorClient) {
	message, ok := b.message()
	if !ok {
		return
	}
	select {
	case client.Send <- message:
	default:
	}
}

func (b *MonitorBroadcaster) broadcast() {
	if b.ClientCount() == 0 {
		return
	}
	message, ok := b.message()
	if !ok {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client.Send <- message:
		default:
		}
	}
}

// WritePump copies queued payloads to the websocket and keeps it alive
// with pings. It returns when the send queue is closed or a write fails.
func (c *MonitorClient) WritePump() {
	ticker := time.NewTicker(monitorPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(monitorWriteWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(monitorWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains client frames so pongs and close frames are processed.
// It blocks until the connection fails.
func (c *MonitorClient) ReadPump() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(monitorPongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(monitorPongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
