package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions serves an OpenAI-compatible streaming endpoint that emits
// the given fragments and records the last request body.
func fakeCompletions(t *testing.T, fragments []string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var lastReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &lastReq)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, frag := range fragments {
			chunk := map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion.chunk",
				"created": 1700000000,
				"model":   "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"delta":         map[string]any{"role": "assistant", "content": frag},
					"finish_reason": nil,
				}},
			}
			if i == len(fragments)-1 {
				chunk["choices"].([]map[string]any)[0]["finish_reason"] = "stop"
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv, &lastReq
}

var prompt = []Message{
	{Role: models.RoleSystem, Content: "be brief"},
	{Role: models.RoleUser, Content: "hi"},
	{Role: models.RoleAssistant, Content: "hello"},
	{Role: models.RoleUser, Content: "count to three"},
}

func collect(t *testing.T, p Provider) ([]string, error) {
	var got []string
	err := p.Stream(context.Background(), prompt, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	return got, err
}

func TestOpenAI_StreamsInOrder(t *testing.T) {
	srv, lastReq := fakeCompletions(t, []string{"one", ", ", "", "two", ", three"})

	got, err := collect(t, NewOpenAI(srv.URL+"/v1", "test-key", "test-model", 64))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", ", ", "two", ", three"}, got)

	req := *lastReq
	assert.Equal(t, "test-model", req["model"])
	assert.Equal(t, true, req["stream"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestLangChain_StreamsInOrder(t *testing.T) {
	srv, lastReq := fakeCompletions(t, []string{"al", "pha", " beta"})

	p, err := NewLangChain(srv.URL+"/v1", "test-key", "test-model", 64)
	require.NoError(t, err)

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", strings.Join(got, ""))
	assert.NotContains(t, got, "")
	assert.Equal(t, true, (*lastReq)["stream"])
}

func TestOpenAI_CallbackErrorStopsStream(t *testing.T) {
	srv, _ := fakeCompletions(t, []string{"a", "b", "c"})
	stop := errors.New("client went away")

	var got []string
	err := NewOpenAI(srv.URL+"/v1", "k", "m", 8).Stream(context.Background(), prompt, func(d string) error {
		got = append(got, d)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, got)
}

func TestOpenAI_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := collect(t, NewOpenAI(srv.URL, "k", "m", 8))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "openai", Model: "m", MaxTokens: 1})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	p, err = New(config.LLMConfig{Provider: "langchain", APIKey: "k", BaseURL: "http://localhost:1/v1", Model: "m", MaxTokens: 1})
	require.NoError(t, err)
	assert.IsType(t, &LangChain{}, p)

	_, err = New(config.LLMConfig{Provider: "nope"})
	assert.Error(t, err)
}
