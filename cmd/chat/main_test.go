package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RichardoC/orion/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer fails the first `failures` streams with a 500 and answers the
// rest. It records the attachment name of every request.
func chatServer(t *testing.T, failures int) (*httptest.Server, *[]string) {
	t.Helper()
	var files []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileName string `json:"fileName"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		files = append(files, body.FileName)

		if len(files) <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"Internal server error."}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"start","conversationId":"c1","title":"Hi"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"delta","text":"ok"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"done"}`+"\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &files
}

func newTestChat(baseURL string) *chat {
	api := client.NewAPI(baseURL, nil)
	api.SetToken("token")
	return &chat{api: api, session: client.NewSession(api), term: &terminal{out: io.Discard}}
}

func TestSend_KeepsAttachmentUntilDelivered(t *testing.T) {
	srv, files := chatServer(t, 1)
	c := newTestChat(srv.URL)
	c.pending = &client.Attachment{Name: "notes.txt", Content: "hello"}

	c.send(context.Background(), "Summarize")
	require.NotNil(t, c.pending)
	assert.Equal(t, "notes.txt", c.pending.Name)

	c.send(context.Background(), "Summarize")
	assert.Nil(t, c.pending)
	assert.Equal(t, []string{"notes.txt", "notes.txt"}, *files)
}

func TestSend_ClearsAttachmentOnSuccess(t *testing.T) {
	srv, files := chatServer(t, 0)
	c := newTestChat(srv.URL)
	c.pending = &client.Attachment{Name: "notes.txt", Content: "hello"}

	c.send(context.Background(), "Summarize")
	assert.Nil(t, c.pending)

	c.send(context.Background(), "Thanks")
	assert.Equal(t, []string{"notes.txt", ""}, *files)
}
