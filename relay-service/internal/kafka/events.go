package kafka

import "time"

// NewPeerJoined builds a peer_joined event stamped at now.
func NewPeerJoined(userID, displayName string, now time.Time) *PresenceEvent {
	return &PresenceEvent{
		Type:        EventPeerJoined,
		UserID:      userID,
		DisplayName: displayName,
		Timestamp:   now.Unix(),
	}
}

// NewPeerLeft builds a peer_left event stamped at now.
func NewPeerLeft(userID, reason string, now time.Time) *PresenceEvent {
	return &PresenceEvent{
		Type:      EventPeerLeft,
		UserID:    userID,
		Reason:    reason,
		Timestamp: now.Unix(),
	}
}
