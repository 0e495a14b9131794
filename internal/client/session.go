package client

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrBusy is returned by Send while a previous turn is still streaming.
	ErrBusy = errors.New("a reply is still streaming")
	// ErrIncomplete means the stream closed without a done or error event.
	ErrIncomplete = errors.New("stream ended unexpectedly")
)

// StreamError carries the message of an "error" event.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "server error: " + e.Message
}

// Renderer displays one reply as it streams in.
type Renderer interface {
	Start(conversationID, title string)
	Searching(query string)
	Delta(text string)
	Done()
	Fail(err error)
}

// Attachment is an extracted upload to send along with the next message.
type Attachment struct {
	Name    string
	Content string
	IsImage bool
}

// Session is one chat view: the conversation it is showing and whether a
// reply is in flight. Each terminal or tab owns its own Session.
type Session struct {
	api *API

	mu             sync.Mutex
	conversationID string
	busy           bool
}

func NewSession(api *API) *Session {
	return &Session{api: api}
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Open switches the session to an existing conversation; an empty id starts
// a new one with the next Send.
func (s *Session) Open(id string) {
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Send streams one turn into r. The returned error has already been passed
// to r.Fail, except for ErrBusy which leaves r untouched.
func (s *Session) Send(ctx context.Context, message string, file *Attachment, r Renderer) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	chat := chatRequest{Message: message, ConversationID: s.conversationID}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if file != nil {
		chat.FileContent = file.Content
		chat.FileName = file.Name
		chat.IsImage = file.IsImage
	}

	body, err := s.api.openStream(ctx, chat)
	if err != nil {
		r.Fail(err)
		return err
	}
	defer body.Close()

	if err := s.consume(body, r); err != nil {
		r.Fail(err)
		return err
	}
	return nil
}

// consume dispatches events until done, error or end of stream.
func (s *Session) consume(body io.Reader, r Renderer) error {
	var dec Decoder
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		for _, ev := range dec.Feed(buf[:n]) {
			switch ev.Type {
			case "start":
				s.Open(ev.ConversationID)
				r.Start(ev.ConversationID, ev.Title)
			case "searching":
				r.Searching(ev.Query)
			case "delta":
				r.Delta(ev.Text)
			case "done":
				r.Done()
				return nil
			case "error":
				return &StreamError{Message: ev.Message}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return ErrIncomplete
		}
		if readErr != nil {
			return readErr
		}
	}
}
