package kafka

import "context"

// PresenceEvent is published whenever a peer joins or leaves the relay.
type PresenceEvent struct {
	Type        string `json:"type"` // "peer_joined" | "peer_left"
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Reason      string `json:"reason,omitempty"` // "closed" | "liveness"
	Timestamp   int64  `json:"timestamp"`
}

// Event types
const (
	EventPeerJoined = "peer_joined"
	EventPeerLeft   = "peer_left"
)

// Leave reasons
const (
	ReasonClosed   = "closed"
	ReasonLiveness = "liveness"
)

// PresenceEventProducer publishes presence changes for downstream consumers
// (analytics, other relay instances). Publishing is best effort.
type PresenceEventProducer interface {
	ProducePeerJoined(ctx context.Context, userID, displayName string) error
	ProducePeerLeft(ctx context.Context, userID, reason string) error
	Close() error
}
