package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformedMessage is returned for data-channel payloads that are not a
// complete chat message.
var ErrMalformedMessage = errors.New("malformed chat message")

// ChatMessage is one chat line as seen by the local user.
type ChatMessage struct {
	ID        string
	SenderID  string
	Content   string
	Timestamp time.Time
	Digest    string
	// Verified is true when Digest matched the content on receipt. Locally
	// sent messages are always verified.
	Verified bool
	// PeerID is the remote side of the session the message travelled on.
	PeerID string
	// SenderName is the display name known for SenderID, if any.
	SenderName string
}

// WireMessage is the JSON object written to the data channel.
type WireMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Hash      string `json:"hash"`
}

// ToWire converts a message for the data channel.
func (m *ChatMessage) ToWire() WireMessage {
	return WireMessage{
		ID:        m.ID,
		Sender:    m.SenderID,
		Content:   m.Content,
		Timestamp: m.Timestamp.UnixMilli(),
		Hash:      m.Digest,
	}
}

// ParseWire decodes a data-channel payload. Verified is left false; the
// caller recomputes it.
func ParseWire(data []byte) (*ChatMessage, error) {
	var w WireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Join(ErrMalformedMessage, err)
	}
	if w.ID == "" || w.Sender == "" {
		return nil, ErrMalformedMessage
	}
	return &ChatMessage{
		ID:        w.ID,
		SenderID:  w.Sender,
		Content:   w.Content,
		Timestamp: time.UnixMilli(w.Timestamp),
		Digest:    w.Hash,
	}, nil
}
