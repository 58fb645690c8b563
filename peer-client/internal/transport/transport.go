// Package transport abstracts the direct peer-to-peer link a chat session
// runs over.
package transport

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotReady is returned by Send before the data channel opens.
	ErrNotReady = errors.New("transport: data channel not open")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrBadSignal is returned for negotiation payloads that cannot be applied.
	ErrBadSignal = errors.New("transport: bad signal")
)

// Handlers receive transport events. Any of them may be nil. They are called
// from transport goroutines.
type Handlers struct {
	// OnSignal emits a negotiation payload that must reach the remote side.
	OnSignal func(payload json.RawMessage)
	// OnOpen fires once the data channel is usable.
	OnOpen func()
	// OnData delivers one data-channel message.
	OnData func(data []byte)
	// OnClose fires at most once, when the link fails or is closed.
	OnClose func(err error)
}

// Transport is one negotiated peer link.
type Transport interface {
	// Signal feeds a payload produced by the remote side.
	Signal(payload json.RawMessage) error
	// Send writes one message on the data channel.
	Send(data []byte) error
	// Close tears the link down. It is safe to call more than once.
	Close() error
}

// Factory creates transports. The initiator side creates the data channel
// and emits the offer.
type Factory interface {
	New(initiator bool, h Handlers) (Transport, error)
}

// IsOffer reports whether payload starts a new negotiation.
func IsOffer(payload json.RawMessage) bool {
	var peek struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(payload, &peek) == nil && peek.Type == "offer"
}
