package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type streamPayload struct {
	Entries   []EntryRef `json:"entries"`
	Timestamp string     `json:"timestamp"`
}

type heartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// handleEntryStream keeps a server-sent event stream open for the caller and
// forwards their entry mutations, interleaved with periodic heartbeats.
func (h *httpHandler) handleEntryStream(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID.String())
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	h.writeHeartbeat(c)

	for {
		select {
		case <-ctx.Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			c.SSEvent(message.EventType, streamPayload{
				Entries:   message.Entries,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-heartbeat.C:
			h.writeHeartbeat(c)
		}
	}
}

func (h *httpHandler) writeHeartbeat(c *gin.Context) {
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
		Source:    realtimeSourceBackend,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	c.Writer.Flush()
}
