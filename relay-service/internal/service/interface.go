package service

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/hub"
)

// RelayService handles presence and signal forwarding.
type RelayService interface {
	// HandleAnnounce binds an identity to the client, records presence and
	// distributes the peer snapshot and join notification.
	HandleAnnounce(ctx context.Context, client *hub.Client, userID, displayName string) error

	// HandleSignal forwards an opaque negotiation payload to the session
	// bound to the target user id.
	HandleSignal(ctx context.Context, client *hub.Client, to string, signal json.RawMessage) error

	// HandleDisconnect reports a departed session to the remaining peers.
	HandleDisconnect(ctx context.Context, client *hub.Client, dep hub.Departure) error

	// Start starts background goroutines (directory pruning).
	Start(ctx context.Context) error

	// Stop stops background goroutines.
	Stop() error
}
