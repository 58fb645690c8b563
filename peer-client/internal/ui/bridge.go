// Package ui presents chat events to the user.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/domain"
)

// Bridge receives everything the session layer wants shown.
type Bridge interface {
	OnMessage(msg *domain.ChatMessage)
	OnPeerStateChanged(peerID string, connected bool)
	OnNetworkStateChanged(online bool)
}

// Terminal writes one line per event.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal creates a terminal bridge writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) OnMessage(msg *domain.ChatMessage) {
	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderID
	}
	line := fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format(time.Kitchen), sender, msg.Content)
	if !msg.Verified {
		line += "  (could not verify)"
	}
	t.println(line)
}

func (t *Terminal) OnPeerStateChanged(peerID string, connected bool) {
	if connected {
		t.println("* " + peerID + " connected")
		return
	}
	t.println("* " + peerID + " disconnected")
}

func (t *Terminal) OnNetworkStateChanged(online bool) {
	if online {
		t.println("* relay online")
		return
	}
	t.println("* relay offline, reconnecting")
}

// Printf writes a free-form line, e.g. command output.
func (t *Terminal) Printf(format string, args ...interface{}) {
	t.println(fmt.Sprintf(format, args...))
}

func (t *Terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}
