package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
)

// DataChannelLabel names the single ordered chat channel.
const DataChannelLabel = "chat"

// Signal is the negotiation payload. Offers and answers carry the complete
// SDP (candidates are gathered before sending); the candidate form is
// accepted for peers that trickle.
type Signal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// PionOptions configures PionFactory.
type PionOptions struct {
	ICEServers []webrtc.ICEServer
	// IncludeLoopback adds 127.0.0.1 host candidates, for same-host peers.
	IncludeLoopback bool
}

// PionFactory builds WebRTC data-channel transports.
type PionFactory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

// NewPionFactory creates a new PionFactory.
func NewPionFactory(opts PionOptions) *PionFactory {
	se := webrtc.SettingEngine{}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	return &PionFactory{
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		iceServers: opts.ICEServers,
	}
}

// New creates a peer connection. An initiator starts negotiating
// immediately and emits its offer through h.OnSignal.
func (f *PionFactory) New(initiator bool, h Handlers) (Transport, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &pionTransport{pc: pc, handlers: h}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l := pkglog.Component("transport")
		l.Debug().Str(pkglog.FieldState, state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed:
			t.closed(fmt.Errorf("peer connection %s", state))
		case webrtc.PeerConnectionStateClosed:
			t.closed(nil)
		}
	})

	if !initiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == DataChannelLabel {
				t.attach(dc)
			}
		})
		return t, nil
	}

	ordered := true
	dc, err := pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	t.attach(dc)

	go func() {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			t.closed(fmt.Errorf("create offer: %w", err))
			return
		}
		if err := t.setLocalAndEmit(offer); err != nil {
			t.closed(err)
		}
	}()
	return t, nil
}

type pionTransport struct {
	pc       *webrtc.PeerConnection
	handlers Handlers

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	open      bool
	closeOnce sync.Once
	done      bool
}

func (t *pionTransport) attach(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.mu.Lock()
		t.open = true
		t.mu.Unlock()
		if t.handlers.OnOpen != nil {
			t.handlers.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if t.handlers.OnData != nil {
			t.handlers.OnData(msg.Data)
		}
	})
	dc.OnClose(func() {
		t.closed(nil)
	})
}

// setLocalAndEmit waits for ICE gathering so the emitted description is
// complete on its own.
func (t *pionTransport) setLocalAndEmit(desc webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := t.pc.LocalDescription()
	payload, err := json.Marshal(Signal{Type: local.Type.String(), SDP: local.SDP})
	if err != nil {
		return err
	}
	if t.handlers.OnSignal != nil {
		t.handlers.OnSignal(payload)
	}
	return nil
}

func (t *pionTransport) Signal(payload json.RawMessage) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return ErrClosed
	}

	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignal, err)
	}

	switch sig.Type {
	case "offer":
		if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := t.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		go func() {
			if err := t.setLocalAndEmit(answer); err != nil {
				t.closed(err)
			}
		}()
		return nil

	case "answer":
		if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return nil

	case "candidate":
		if sig.Candidate == nil {
			return fmt.Errorf("%w: candidate missing", ErrBadSignal)
		}
		return t.pc.AddICECandidate(*sig.Candidate)

	default:
		return fmt.Errorf("%w: type %q", ErrBadSignal, sig.Type)
	}
}

func (t *pionTransport) Send(data []byte) error {
	t.mu.Lock()
	dc, open, done := t.dc, t.open, t.done
	t.mu.Unlock()
	if done {
		return ErrClosed
	}
	if dc == nil || !open {
		return ErrNotReady
	}
	return dc.Send(data)
}

func (t *pionTransport) Close() error {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	err := t.pc.Close()
	t.closed(nil)
	return err
}

func (t *pionTransport) closed(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.done = true
		t.open = false
		t.mu.Unlock()
		if err != nil {
			l := pkglog.Component("transport")
			l.Debug().Err(err).Msg("peer transport closed")
		}
		if t.handlers.OnClose != nil {
			t.handlers.OnClose(err)
		}
	})
}
