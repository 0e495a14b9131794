// Package client talks to the chat server: it calls the JSON API and turns
// the reply stream back into render calls.
package client

import (
	"bytes"
	"encoding/json"
)

// Event mirrors one frame of the server's reply stream.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Title          string `json:"title,omitempty"`
	Query          string `json:"query,omitempty"`
	Text           string `json:"text,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Decoder reassembles events from arbitrarily split chunks of the stream.
// Only complete "data:" lines are decoded; the unterminated tail waits for
// the next Feed. Lines that are not valid JSON are dropped.
type Decoder struct {
	buf []byte
}

func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}
	// detach the tail so the consumed prefix can be collected
	d.buf = append([]byte(nil), d.buf...)
	return events
}

func parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(payload), &ev); err != nil || ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}
