// Package messaging provides the concrete implementation of the SSE broadcaster.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
)

// Level is the severity shown with a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-visible message pushed to every stream of a
// console session.
type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrTooManyStreams is returned by Subscribe when a session already holds
// its maximum number of open streams.
var ErrTooManyStreams = errors.New("too many notification streams for session")

// SSEBroadcaster fans notifications out to the SSE streams of one console session.
type SSEBroadcaster struct {
	sessions   map[string][]chan string // sessionId -> []channels
	maxStreams int
	mu         sync.Mutex
	logger     *logging.ChanneledLogger
}

var _ Broadcaster = (*SSEBroadcaster)(nil)

// NewSSEBroadcaster creates a broadcaster. maxStreams <= 0 means unlimited.
func NewSSEBroadcaster(maxStreams int, logger *logging.ChanneledLogger) *SSEBroadcaster {
	return &SSEBroadcaster{
		sessions:   make(map[string][]chan string),
		maxStreams: maxStreams,
		logger:     logger,
	}
}

// Subscribe registers a new stream for sessionID.
func (b *SSEBroadcaster) Subscribe(sessionID string) (chan string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxStreams > 0 && len(b.sessions[sessionID]) >= b.maxStreams {
		b.logger.Notify().Warn("Notification stream limit reached", "sessionId", logging.MaskID(sessionID), "limit", b.maxStreams)
		return nil, ErrTooManyStreams
	}

	ch := make(chan string, 16)
	b.sessions[sessionID] = append(b.sessions[sessionID], ch)
	b.logger.Notify().Debug("Notification stream registered", "sessionId", logging.MaskID(sessionID), "streams", len(b.sessions[sessionID]))
	return ch, nil
}

// Unsubscribe removes ch from sessionID. It is safe to call after
// CloseSession already closed the channel.
func (b *SSEBroadcaster) Unsubscribe(ch chan string, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, exists := b.sessions[sessionID]
	if !exists {
		return
	}
	kept := clients[:0]
	for _, client := range clients {
		if client == ch {
			close(client)
			continue
		}
		kept = append(kept, client)
	}
	if len(kept) == 0 {
		delete(b.sessions, sessionID)
	} else {
		b.sessions[sessionID] = kept
	}
	b.logger.Notify().Debug("Notification stream unregistered", "sessionId", logging.MaskID(sessionID))
}

// SubscriberCount returns the number of open streams for sessionID.
func (b *SSEBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[sessionID])
}

// Notify delivers n to every stream of sessionID. Slow streams drop the message.
func (b *SSEBroadcaster) Notify(sessionID string, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	message, err := FormatEvent("notification", n)
	if err != nil {
		b.logger.Notify().Error("Failed to encode notification", "error", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.sessions[sessionID] {
		select {
		case ch <- message:
		default:
			b.logger.Notify().Warn("Notification channel full, message dropped", "sessionId", logging.MaskID(sessionID))
		}
	}
}

// CloseSession closes every stream of sessionID, ending their handlers.
func (b *SSEBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.sessions[sessionID] {
		close(ch)
	}
	delete(b.sessions, sessionID)
}

// FormatEvent renders one SSE frame with a JSON payload.
func FormatEvent(event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data), nil
}
