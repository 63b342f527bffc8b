package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventReviewStatus = "review.status"
)

// ReviewStatusEvent is broadcast whenever a review changes lifecycle state.
type ReviewStatusEvent struct {
	ReviewID string `json:"review_id"`
	Repo     string `json:"repo"`
	PRNumber int    `json:"pr_number"`
	Status   string `json:"status"`
	Verdict  string `json:"verdict,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it to all clients.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
