package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"announce", `{"kind":"announce","userId":"a"}`, KindAnnounce, false},
		{"signal", `{"kind":"signal"}`, KindSignal, false},
		{"not json", `not json`, "", true},
		{"no kind", `{"userId":"a"}`, "", true},
		{"array", `[1,2]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindOf([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("KindOf = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestEmptySnapshotEncodesAsArray(t *testing.T) {
	data, err := json.Marshal(NewPeerList(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"peer_list","peers":[]}` {
		t.Fatalf("got %s", data)
	}
}

func TestForwardedSignalStripsTo(t *testing.T) {
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	data, err := json.Marshal(NewForwardedSignal("alice", "alice:ab12", payload))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["to"]; ok {
		t.Fatal("forwarded signal must not carry to")
	}
	if string(raw["signal"]) != string(payload) {
		t.Fatalf("signal = %s, want %s", raw["signal"], payload)
	}
}

func TestValidate(t *testing.T) {
	if err := NewAnnounce("", "x").Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("announce without id: %v", err)
	}
	if err := NewAnnounce("id", "").Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("announce without name: %v", err)
	}
	if err := NewAnnounce("id", "bob:cd34").Validate(); err != nil {
		t.Fatalf("valid announce: %v", err)
	}

	sig := NewOutboundSignal("", "a", "a", json.RawMessage(`{}`))
	if err := sig.Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("signal without to: %v", err)
	}
	sig = NewOutboundSignal("b", "a", "a", nil)
	if err := sig.Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("signal without payload: %v", err)
	}
	sig = NewOutboundSignal("b", "a", "a", json.RawMessage(`null`))
	if err := sig.Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("signal with null payload: %v", err)
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"kind":"signal","from":"a1","fromDisplayName":"alice:a1","signal":{"type":"offer"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != KindSignal || env.From != "a1" || string(env.Signal) != `{"type":"offer"}` {
		t.Errorf("envelope = %+v", env)
	}

	for _, in := range []string{`not json`, `{}`, `{"peers":[]}`} {
		if _, err := ParseEnvelope([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseEnvelope(%q) = %v, want ErrMalformed", in, err)
		}
	}
}
