// Package protocol defines the JSON frames exchanged between peers and the
// relay over the control websocket. One frame is one JSON object whose
// "kind" field selects the shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds sent by peers.
const (
	KindAnnounce = "announce"
	KindSignal   = "signal"
	KindPing     = "ping"
)

// Frame kinds sent by the relay.
const (
	KindPeerList = "peer_list"
	KindPeerLeft = "peer_left"
	KindError    = "error"
	KindPong     = "pong"
)

// Error codes carried by ErrorMessage.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnknownKind   = "UNKNOWN_KIND"
	ErrCodeNotAnnounced  = "NOT_ANNOUNCED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a kind.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("protocol: missing field")
)

// BaseMessage is decoded first to dispatch on Kind.
type BaseMessage struct {
	Kind string `json:"kind"`
}

// PeerInfo identifies one peer in a presence list.
type PeerInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// AnnounceMessage registers presence and asks for a snapshot.
type AnnounceMessage struct {
	Kind        string `json:"kind"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// SignalMessage carries an opaque negotiation payload. To is set on the way
// in and stripped by the relay; From and FromDisplayName are set by the relay
// on the way out.
type SignalMessage struct {
	Kind            string          `json:"kind"`
	To              string          `json:"to,omitempty"`
	From            string          `json:"from,omitempty"`
	FromDisplayName string          `json:"fromDisplayName,omitempty"`
	Signal          json.RawMessage `json:"signal"`
}

// PeerListMessage is either the full snapshot sent after announce or a
// one-entry "peer joined" notification.
type PeerListMessage struct {
	Kind  string     `json:"kind"`
	Peers []PeerInfo `json:"peers"`
}

// PeerLeftMessage announces a disconnect.
type PeerLeftMessage struct {
	Kind   string `json:"kind"`
	UserID string `json:"userId"`
}

// ErrorMessage is advisory; the connection stays usable.
type ErrorMessage struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PingMessage / PongMessage are application-level keepalives.
type PingMessage struct {
	Kind string `json:"kind"`
}

// KindOf decodes just the kind of a frame.
func KindOf(data []byte) (string, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if base.Kind == "" {
		return "", fmt.Errorf("%w: no kind", ErrMalformed)
	}
	return base.Kind, nil
}

// Validate checks required announce fields.
func (m *AnnounceMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: userId", ErrMissingField)
	}
	if m.DisplayName == "" {
		return fmt.Errorf("%w: displayName", ErrMissingField)
	}
	return nil
}

// Validate checks required outbound signal fields.
func (m *SignalMessage) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: to", ErrMissingField)
	}
	if len(m.Signal) == 0 || string(m.Signal) == "null" {
		return fmt.Errorf("%w: signal", ErrMissingField)
	}
	return nil
}

// NewAnnounce builds an announce frame.
func NewAnnounce(userID, displayName string) *AnnounceMessage {
	return &AnnounceMessage{Kind: KindAnnounce, UserID: userID, DisplayName: displayName}
}

// NewOutboundSignal builds the frame a peer sends to the relay.
func NewOutboundSignal(to, from, fromDisplayName string, signal json.RawMessage) *SignalMessage {
	return &SignalMessage{
		Kind:            KindSignal,
		To:              to,
		From:            from,
		FromDisplayName: fromDisplayName,
		Signal:          signal,
	}
}

// NewForwardedSignal builds the frame the relay delivers to the target.
func NewForwardedSignal(from, fromDisplayName string, signal json.RawMessage) *SignalMessage {
	return &SignalMessage{
		Kind:            KindSignal,
		From:            from,
		FromDisplayName: fromDisplayName,
		Signal:          signal,
	}
}

// NewPeerList builds a presence snapshot. A nil slice is sent as [].
func NewPeerList(peers []PeerInfo) *PeerListMessage {
	if peers == nil {
		peers = []PeerInfo{}
	}
	return &PeerListMessage{Kind: KindPeerList, Peers: peers}
}

// NewPeerLeft builds a disconnect notification.
func NewPeerLeft(userID string) *PeerLeftMessage {
	return &PeerLeftMessage{Kind: KindPeerLeft, UserID: userID}
}

// NewError builds an advisory error frame.
func NewError(code, message string) *ErrorMessage {
	return &ErrorMessage{Kind: KindError, Code: code, Message: message}
}

// NewPong builds a keepalive reply.
func NewPong() *PingMessage {
	return &PingMessage{Kind: KindPong}
}

// NewPing builds an application-level keepalive.
func NewPing() *PingMessage {
	return &PingMessage{Kind: KindPing}
}

// Envelope is the union of every relay-to-peer frame, for clients that
// dispatch on Kind after a single decode.
type Envelope struct {
	Kind            string          `json:"kind"`
	From            string          `json:"from,omitempty"`
	FromDisplayName string          `json:"fromDisplayName,omitempty"`
	Signal          json.RawMessage `json:"signal,omitempty"`
	UserID          string          `json:"userId,omitempty"`
	Peers           []PeerInfo      `json:"peers,omitempty"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// ParseEnvelope decodes a relay frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("%w: no kind", ErrMalformed)
	}
	return &env, nil
}
