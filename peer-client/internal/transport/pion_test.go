package transport

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInitiatorEmitsCompleteOffer(t *testing.T) {
	f := NewPionFactory(PionOptions{IncludeLoopback: true})
	signals := make(chan json.RawMessage, 1)

	tr, err := f.New(true, Handlers{OnSignal: func(p json.RawMessage) { signals <- p }})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	select {
	case payload := <-signals:
		var sig Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			t.Fatal(err)
		}
		if sig.Type != "offer" {
			t.Errorf("type = %q, want offer", sig.Type)
		}
		if !strings.Contains(sig.SDP, "m=application") {
			t.Errorf("offer has no data section:\n%s", sig.SDP)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no offer emitted")
	}

	if err := tr.Send([]byte("early")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send before open = %v, want ErrNotReady", err)
	}
}

func TestSignalRejectsGarbage(t *testing.T) {
	f := NewPionFactory(PionOptions{})
	tr, err := f.New(false, Handlers{})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	for _, in := range []string{`not json`, `{"type":"bogus"}`, `{"type":"candidate"}`} {
		if err := tr.Signal(json.RawMessage(in)); !errors.Is(err, ErrBadSignal) {
			t.Errorf("Signal(%s) = %v, want ErrBadSignal", in, err)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := NewPionFactory(PionOptions{})
	closes := make(chan error, 2)
	tr, err := f.New(false, Handlers{OnClose: func(err error) { closes <- err }})
	if err != nil {
		t.Fatal(err)
	}
	tr.Close()
	tr.Close()

	time.Sleep(50 * time.Millisecond)
	if n := len(closes); n != 1 {
		t.Errorf("OnClose fired %d times, want 1", n)
	}
	if err := tr.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := tr.Signal(json.RawMessage(`{"type":"answer","sdp":""}`)); !errors.Is(err, ErrClosed) {
		t.Errorf("Signal after Close = %v, want ErrClosed", err)
	}
}

func TestLoopbackDataChannel(t *testing.T) {
	f := NewPionFactory(PionOptions{IncludeLoopback: true})

	var offerer, answerer Transport
	toAnswerer := make(chan json.RawMessage, 4)
	toOfferer := make(chan json.RawMessage, 4)
	opened := make(chan struct{}, 2)
	received := make(chan string, 1)

	var err error
	answerer, err = f.New(false, Handlers{
		OnSignal: func(p json.RawMessage) { toOfferer <- p },
		OnOpen:   func() { opened <- struct{}{} },
		OnData:   func(d []byte) { received <- string(d) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer answerer.Close()

	offerer, err = f.New(true, Handlers{
		OnSignal: func(p json.RawMessage) { toAnswerer <- p },
		OnOpen:   func() { opened <- struct{}{} },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()

	timeout := time.After(15 * time.Second)
	for n := 0; n < 2; {
		select {
		case p := <-toAnswerer:
			if err := answerer.Signal(p); err != nil {
				t.Fatalf("answerer.Signal: %v", err)
			}
		case p := <-toOfferer:
			if err := offerer.Signal(p); err != nil {
				t.Fatalf("offerer.Signal: %v", err)
			}
		case <-opened:
			n++
		case <-timeout:
			t.Fatal("data channel did not open")
		}
	}

	if err := offerer.Send([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-received:
		if got != "hi" {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
