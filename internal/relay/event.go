package relay

import "errors"

type EventType string

const (
	EventStart     EventType = "start"
	EventSearching EventType = "searching"
	EventDelta     EventType = "delta"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one frame of the reply stream.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Title          string    `json:"title,omitempty"`
	Query          string    `json:"query,omitempty"`
	Text           string    `json:"text,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Emitter delivers events to the client. An error means the client is gone.
type Emitter interface {
	Emit(Event) error
}

type EmitterFunc func(Event) error

func (f EmitterFunc) Emit(ev Event) error { return f(ev) }

var errClientGone = errors.New("client disconnected")
