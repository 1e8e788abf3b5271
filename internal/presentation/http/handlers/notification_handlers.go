package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// NotificationHandlers streams user-visible notifications to the console
type NotificationHandlers struct {
	broadcaster messaging.Broadcaster
	heartbeat   time.Duration
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewNotificationHandlers creates notification handlers with injected dependencies
func NewNotificationHandlers(broadcaster messaging.Broadcaster, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *NotificationHandlers {
	heartbeat := time.Duration(config.SSEHeartbeatIntervalSeconds) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &NotificationHandlers{
		broadcaster: broadcaster,
		heartbeat:   heartbeat,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetStream handles GET /api/v1/notifications/stream - an SSE stream of the
// console session's notifications
func (h *NotificationHandlers) GetStream(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}

	start := time.Now()
	marker := h.perfTracker.StartOperation("get_notification_stream", cs.ID)
	defer marker.Complete()

	ch, err := h.broadcaster.Subscribe(cs.ID)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, messaging.ErrTooManyStreams) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many open notification streams"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Notification stream unavailable"})
		return
	}
	defer h.broadcaster.Unsubscribe(ch, cs.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	connected, _ := messaging.FormatEvent("connected", gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := c.Writer.WriteString(connected); err != nil {
		marker.SetError(err)
		return
	}
	c.Writer.Flush()

	h.logger.Notify().Info("Notification stream established",
		"sessionId", logging.MaskID(cs.ID),
		"streams", h.broadcaster.SubscriberCount(cs.ID),
		"setupDuration", time.Since(start))
	marker.SetSuccess(true)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	clientCtx := c.Request.Context()
	connectionStart := time.Now()
	for {
		select {
		case <-clientCtx.Done():
			h.logger.Notify().Debug("Notification stream client disconnected",
				"sessionId", logging.MaskID(cs.ID),
				"connectionDuration", time.Since(connectionStart))
			return

		case message, ok := <-ch:
			if !ok {
				h.logger.Notify().Debug("Notification stream closed by server",
					"sessionId", logging.MaskID(cs.ID),
					"connectionDuration", time.Since(connectionStart))
				return
			}
			if _, err := c.Writer.WriteString(message); err != nil {
				h.logger.Notify().Warn("Notification stream write failed", "sessionId", logging.MaskID(cs.ID), "error", err.Error())
				return
			}
			c.Writer.Flush()

		case <-ticker.C:
			heartbeat, _ := messaging.FormatEvent("heartbeat", gin.H{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if _, err := c.Writer.WriteString(heartbeat); err != nil {
				h.logger.Notify().Debug("Notification heartbeat failed", "sessionId", logging.MaskID(cs.ID), "error", err.Error())
				return
			}
			c.Writer.Flush()
		}
	}
}
