package core

import (
	"bytes"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Client event types.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypePing                   = "ping"
)

// Server event types.
const (
	EventTypeError                  = "error"
	EventTypeSessionCreated         = "session.created"
	EventTypeSessionUpdated         = "session.updated"
	EventTypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeAudioTranscriptDone    = "response.audio_transcript.done"
	EventTypeFunctionCallDone       = "response.function_call_arguments.done"
	EventTypeResponseDone           = "response.done"
	EventTypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventTypeOutputAudioStarted     = "output_audio_buffer.started"
	EventTypeOutputAudioStopped     = "output_audio_buffer.stopped"
	EventTypePong                   = "pong"
)

// Frame is a raw message payload as it travels on a transport.
type Frame []byte

// Event is a structured message exchanged over the data channel or the relay socket.
// Everything besides "type" and "event_id" is opaque payload.
type Event map[string]any

// Envelope is the part of an Event the transports care about.
type Envelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

func (e Event) ID() string {
	s, _ := e["event_id"].(string)
	return s
}

// EnsureID assigns a fresh event_id unless one is already set and returns it.
func (e Event) EnsureID() string {
	if id := e.ID(); id != "" {
		return id
	}
	id := NewEventID()
	e["event_id"] = id
	return id
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewEventID returns a random identifier for client events.
func NewEventID() string {
	return uuid.NewString()
}

var errNotObject = errors.New("not a json object")

// ParseEnvelope validates that data is a JSON object event and extracts its envelope.
// Failures are reported as *MessageParseError tagged with source.
func ParseEnvelope(source string, data []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, &MessageParseError{Source: source, Err: errNotObject}
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, &MessageParseError{Source: source, Err: err}
	}
	return env, nil
}

// DecodeEvent parses a full event.
func DecodeEvent(source string, data []byte) (Event, error) {
	if _, err := ParseEnvelope(source, data); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &MessageParseError{Source: source, Err: err}
	}
	return ev, nil
}

// TextMessage builds the conversation.item.create event for a user text message.
func TextMessage(text string) Event {
	return Event{
		"type": EventTypeConversationItemCreate,
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []any{
				map[string]any{"type": "input_text", "text": text},
			},
		},
	}
}

// ResponseCreate builds the event asking the peer to generate a response.
func ResponseCreate() Event {
	return Event{"type": EventTypeResponseCreate}
}
