// ABOUTME: SSE event stream for agents, with pending-notification replay
// ABOUTME: on connect and at-least-once delivery through the dispatcher

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/95percent-ai/butt-dial/internal/presence"
	"github.com/95percent-ai/butt-dial/internal/store"
)

// replayTimeout bounds the backlog replay for one reconnect.
const replayTimeout = 30 * time.Second

// notificationPayload is the wire shape of a notification event.
type notificationPayload struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Caller        string    `json:"caller,omitempty"`
	Transcript    string    `json:"transcript,omitempty"`
	RecordingURL  string    `json:"recording_url,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toNotificationPayload(n *store.NotificationRecord) notificationPayload {
	return notificationPayload{
		ID:            n.ID,
		Kind:          n.Kind,
		Caller:        n.Caller,
		Transcript:    n.Transcript,
		RecordingURL:  n.RecordingURL,
		CorrelationID: n.CorrelationID,
		CreatedAt:     n.CreatedAt,
	}
}

// streamDeliverer delivers notifications into one agent's live stream.
// The event type is the notification kind, so clients can subscribe to
// voicemail, missed_call, and inbound_message separately.
type streamDeliverer struct {
	conn *presence.Connection
}

func (s streamDeliverer) Deliver(ctx context.Context, n *store.NotificationRecord) error {
	return s.conn.Push(presence.Event{
		Type: n.Kind,
		Data: toNotificationPayload(n),
	})
}

// replayPending drains the agent's pending backlog into a fresh stream,
// oldest first, then reports the replay outcome as a redelivery event.
// Runs on its own goroutine via the presence OnConnect hook.
func (g *Gateway) replayPending(conn *presence.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	results, err := g.dispatcher.DispatchPending(ctx, conn.AgentID, streamDeliverer{conn: conn})
	if err != nil {
		g.logger.Error("backlog replay failed", "agent_id", conn.AgentID, "error", err)
		return
	}
	if len(results) == 0 {
		return
	}

	delivered, failed := 0, 0
	for _, res := range results {
		if res.Delivered {
			delivered++
		} else {
			failed++
		}
	}
	_ = conn.Push(presence.Event{
		Type: "redelivery",
		Data: map[string]int{"delivered": delivered, "failed": failed},
	})
}

// handleEvents serves the agent's SSE stream. Registering the connection
// triggers the backlog replay; the handler then drains the stream until
// the client goes away or a reconnect replaces it.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := g.presence.Register(agent.ID, agent.TenantID)
	defer g.presence.Unregister(agent.ID, conn)

	g.writeSSEEvent(w, flusher, "connected", map[string]any{
		"agent_id":     agent.ID,
		"connected_at": conn.ConnectedAt,
	})

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-conn.Events():
			if !open {
				// A reconnect replaced this stream.
				return
			}
			g.writeSSEEvent(w, flusher, evt.Type, evt.Data)
		}
	}
}

// writeSSEEvent writes one server-sent event and flushes it out.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
