package core

import (
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Envelope
		wantErr bool
	}{
		{"full", `{"type":"response.create","event_id":"e1","x":1}`, Envelope{Type: "response.create", EventID: "e1"}, false},
		{"no id", ` {"type":"ping"}`, Envelope{Type: "ping"}, false},
		{"array", `[1,2]`, Envelope{}, true},
		{"empty", ``, Envelope{}, true},
		{"truncated", `{"type":`, Envelope{}, true},
		{"wrong type", `{"type":5}`, Envelope{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope("relay", []byte(tt.in))
			if tt.wantErr {
				var pe *MessageParseError
				if !errors.As(err, &pe) || pe.Source != "relay" {
					t.Fatalf("err = %v, want MessageParseError from relay", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEnsureID(t *testing.T) {
	ev := Event{"type": "response.create"}
	id := ev.EnsureID()
	if id == "" || ev.ID() != id {
		t.Fatalf("EnsureID = %q, ID() = %q", id, ev.ID())
	}
	if again := ev.EnsureID(); again != id {
		t.Fatalf("EnsureID changed id %q -> %q", id, again)
	}

	own := Event{"type": "x", "event_id": "mine"}
	if own.EnsureID() != "mine" {
		t.Fatal("existing id replaced")
	}
}

func TestDecodeEventKeepsPayload(t *testing.T) {
	ev, err := DecodeEvent("peer", []byte(`{"type":"session.created","session":{"id":"s1"}}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.Type() != EventTypeSessionCreated {
		t.Fatalf("type = %q", ev.Type())
	}
	sess, _ := ev["session"].(map[string]any)
	if sess["id"] != "s1" {
		t.Fatalf("payload lost: %v", ev)
	}
}

func TestTextMessageShape(t *testing.T) {
	ev := TextMessage("hi")
	if ev.Type() != EventTypeConversationItemCreate {
		t.Fatalf("type = %q", ev.Type())
	}
	raw, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := DecodeEvent("client", raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	item := back["item"].(map[string]any)
	content := item["content"].([]any)[0].(map[string]any)
	if item["role"] != "user" || content["type"] != "input_text" || content["text"] != "hi" {
		t.Fatalf("unexpected item %v", item)
	}
	if ResponseCreate().Type() != EventTypeResponseCreate {
		t.Fatal("ResponseCreate type")
	}
}
