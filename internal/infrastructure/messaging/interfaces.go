// Package messaging defines interfaces for real-time communication.
package messaging

// Broadcaster manages per-console-session SSE subscribers.
type Broadcaster interface {
	Subscribe(sessionID string) (chan string, error)
	Unsubscribe(ch chan string, sessionID string)
	SubscriberCount(sessionID string) int
	Notify(sessionID string, n Notification)
	CloseSession(sessionID string)
}
