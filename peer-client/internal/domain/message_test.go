package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseWire(t *testing.T) {
	msg, err := ParseWire([]byte(`{"id":"m1","sender":"a1","content":"hi","timestamp":1700000000000,"hash":"abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m1" || msg.SenderID != "a1" || msg.Content != "hi" || msg.Digest != "abc" {
		t.Errorf("parsed = %+v", msg)
	}
	if !msg.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp = %v", msg.Timestamp)
	}
	if msg.Verified {
		t.Error("ParseWire must not mark messages verified")
	}
}

func TestParseWireRejects(t *testing.T) {
	for _, in := range []string{`not json`, `{}`, `{"id":"m1"}`, `[]`} {
		if _, err := ParseWire([]byte(in)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("ParseWire(%q) err = %v", in, err)
		}
	}
}

func TestToWireKeepsFields(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	m := &ChatMessage{ID: "m1", SenderID: "a1", Content: "hi", Timestamp: ts, Digest: "d"}
	w := m.ToWire()
	if w.Timestamp != 1700000000123 || w.Sender != "a1" || w.Hash != "d" {
		t.Errorf("wire = %+v", w)
	}
}
