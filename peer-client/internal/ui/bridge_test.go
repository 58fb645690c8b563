package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/domain"
)

func TestTerminalMarksUnverified(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	ts := time.Date(2024, 1, 1, 15, 4, 0, 0, time.UTC)

	term.OnMessage(&domain.ChatMessage{SenderID: "b1", SenderName: "bob:b1", Content: "hi", Timestamp: ts, Verified: true})
	term.OnMessage(&domain.ChatMessage{SenderID: "b1", Content: "tampered", Timestamp: ts})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "[3:04PM] bob:b1: hi" {
		t.Errorf("verified line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[3:04PM] b1: tampered") || !strings.Contains(lines[1], "could not verify") {
		t.Errorf("unverified line = %q", lines[1])
	}
}

func TestTerminalStateLines(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	term.OnPeerStateChanged("b1", true)
	term.OnPeerStateChanged("b1", false)
	term.OnNetworkStateChanged(false)

	want := "* b1 connected\n* b1 disconnected\n* relay offline, reconnecting\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
