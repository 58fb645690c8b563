package domain

import "time"

// PeerState is the lifecycle of one peer session.
type PeerState int

const (
	PeerNegotiating PeerState = iota
	PeerConnected
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerNegotiating:
		return "negotiating"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role records which side started the negotiation. It never changes for the
// life of a session.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// PeerSnapshot is a read-only view of a peer session.
type PeerSnapshot struct {
	PeerID         string
	DisplayName    string
	Role           Role
	State          PeerState
	CreatedAt      time.Time
	LastActivityAt time.Time
}
