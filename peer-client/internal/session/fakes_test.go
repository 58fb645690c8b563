package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/domain"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/transport"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/protocol"
)

var errLinkDown = errors.New("link down")

const (
	fakeOffer  = `{"type":"offer","sdp":"fake"}`
	fakeAnswer = `{"type":"answer","sdp":"fake"}`
)

// fakeSender records frames bound for the relay.
type fakeSender struct {
	mu     sync.Mutex
	frames []*protocol.SignalMessage
}

func (s *fakeSender) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := v.(*protocol.SignalMessage); ok {
		s.frames = append(s.frames, msg)
	}
	return nil
}

func (s *fakeSender) drain() []*protocol.SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.frames
	s.frames = nil
	return out
}

// fakeTransport offers on creation when initiator and answers any offer it
// is fed. Send delivers to the linked remote transport.
type fakeTransport struct {
	initiator bool
	h         transport.Handlers

	mu      sync.Mutex
	fed     []string
	sent    [][]byte
	closed  bool
	remote  *fakeTransport
	failing bool
}

func (t *fakeTransport) Signal(payload json.RawMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.fed = append(t.fed, string(payload))
	t.mu.Unlock()

	if transport.IsOffer(payload) && t.h.OnSignal != nil {
		t.h.OnSignal(json.RawMessage(fakeAnswer))
	}
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.failing {
		t.mu.Unlock()
		return errLinkDown
	}
	t.sent = append(t.sent, data)
	remote := t.remote
	t.mu.Unlock()

	if remote != nil && remote.h.OnData != nil {
		remote.h.OnData(data)
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	already := t.closed
	t.closed = true
	t.mu.Unlock()
	if !already && t.h.OnClose != nil {
		t.h.OnClose(nil)
	}
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) open() {
	if t.h.OnOpen != nil {
		t.h.OnOpen()
	}
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeTransport
	err     error
}

func (f *fakeFactory) New(initiator bool, h transport.Handlers) (transport.Transport, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{initiator: initiator, h: h}
	f.mu.Lock()
	f.created = append(f.created, t)
	f.mu.Unlock()

	if initiator && h.OnSignal != nil {
		h.OnSignal(json.RawMessage(fakeOffer))
	}
	return t, nil
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type stateChange struct {
	peerID    string
	connected bool
}

type fakeBridge struct {
	mu       sync.Mutex
	messages []*domain.ChatMessage
	states   []stateChange
}

func (b *fakeBridge) OnMessage(msg *domain.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *fakeBridge) OnPeerStateChanged(peerID string, connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, stateChange{peerID, connected})
}

func (b *fakeBridge) OnNetworkStateChanged(bool) {}

func (b *fakeBridge) lastMessage() *domain.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return nil
	}
	return b.messages[len(b.messages)-1]
}

func (b *fakeBridge) stateLog() []stateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]stateChange(nil), b.states...)
}
