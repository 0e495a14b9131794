package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/RichardoC/orion/internal/auth"
	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/extract"
	"github.com/RichardoC/orion/internal/llm"
	"github.com/RichardoC/orion/internal/models"
	"github.com/RichardoC/orion/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type scriptedProvider struct {
	deltas []string
}

func (p *scriptedProvider) Stream(ctx context.Context, _ []llm.Message, fn llm.DeltaFunc) error {
	for _, d := range p.deltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

type testServer struct {
	store   *db.MemoryStorage
	auth    *auth.Service
	handler http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions, relayOpts ...relay.Option) *testServer {
	t.Helper()
	store := db.NewMemoryStorage()
	authService := auth.NewService(store, "test-secret-0123456789", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	chatRelay := relay.New(store, &scriptedProvider{deltas: []string{"Hello", ", world"}}, zap.NewNop(), relayOpts...)
	h := NewHandler(store, authService, chatRelay, extract.New(0, 0, 0), zap.NewNop())
	return &testServer{store: store, auth: authService, handler: h.Routes(opts)}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", CredentialsRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			UserID string `json:"userId"`
			Email  string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token, resp.User.UserID
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func sseEvents(t *testing.T, body string) []relay.Event {
	t.Helper()
	var events []relay.Event
	for _, frame := range strings.Split(body, "\n\n") {
		if !strings.HasPrefix(frame, "data: ") {
			continue
		}
		var ev relay.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	token, userID := s.signup(t, "Ada@Example.com")
	assert.NotEmpty(t, token)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", CredentialsRequest{Email: "ada@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered.", errorOf(t, rec))

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", CredentialsRequest{Email: "b@example.com", Password: "12345"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", CredentialsRequest{Email: "ada@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", CredentialsRequest{Email: "ada@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, userID, me["userId"])
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotContains(t, me, "password")
}

func TestRequireAuth(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/conversations", "not-a-jwt", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := auth.NewService(s.store, "another-secret-0123456789", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	foreign, _, err := other.Signup(context.Background(), "x@example.com", "secret1")
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/api/conversations", foreign, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMe_DeletedUser(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	ghost := auth.NewService(db.NewMemoryStorage(), "test-secret-0123456789", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	token, _, err := ghost.Signup(context.Background(), "ghost@example.com", "secret1")
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	token, userID := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: "Hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, relay.EventStart, events[0].Type)
	assert.Equal(t, "Hi", events[0].Title)
	assert.Equal(t, "Hello", events[1].Text)
	assert.Equal(t, ", world", events[2].Text)
	assert.Equal(t, relay.EventDone, events[3].Type)

	convID := events[0].ConversationID
	rec = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ConversationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, convID, list.Conversations[0].ID)
	assert.Equal(t, 2, list.Conversations[0].MessageCount)

	rec = s.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello, world", conv.Messages[1].Content)

	stored, err := s.store.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Equal(t, userID, stored.OwnerID)
}

func eventTypes(events []relay.Event) []relay.EventType {
	out := make([]relay.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestChatStream_SearchWithoutAPIKey(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Search.Enabled = true
	cfg.Search.APIKey = ""

	s := newTestServer(t, RouterOptions{}, relay.ConfigOptions(cfg, zap.NewNop())...)
	token, _ := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: "What's the weather in Paris today?"})
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	assert.Equal(t, []relay.EventType{
		relay.EventStart, relay.EventSearching, relay.EventDelta, relay.EventDelta, relay.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "What's the weather in Paris today?", events[1].Query)
}

func TestChatStream_SearchDisabled(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Search.Enabled = false
	cfg.Search.APIKey = "tvly-unused"

	s := newTestServer(t, RouterOptions{}, relay.ConfigOptions(cfg, zap.NewNop())...)
	token, _ := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: "What's the weather in Paris today?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []relay.EventType{
		relay.EventStart, relay.EventDelta, relay.EventDelta, relay.EventDone,
	}, eventTypes(sseEvents(t, rec.Body.String())))
}

func TestChatStream_Rejections(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	token, _ := s.signup(t, "ada@example.com")
	otherToken, _ := s.signup(t, "eve@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message is required.", errorOf(t, rec))

	rec = s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: "Hi"})
	convID := sseEvents(t, rec.Body.String())[0].ConversationID

	rec = s.do(t, http.MethodPost, "/api/chat/stream", otherToken, ChatRequest{Message: "mine now", ConversationID: convID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	msgs, err := s.store.GetMessages(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestConversationAccess(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	token, _ := s.signup(t, "ada@example.com")
	otherToken, _ := s.signup(t, "eve@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat/stream", token, ChatRequest{Message: "Hi"})
	convID := sseEvents(t, rec.Body.String())[0].ConversationID

	rec = s.do(t, http.MethodGet, "/api/conversations/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/conversations/"+convID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/conversations/"+convID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	msgs, err := s.store.GetMessages(context.Background(), convID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func uploadRequest(t *testing.T, token, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	token, _ := s.signup(t, "ada@example.com")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, token, "notes.md", "text/markdown", []byte("# Notes\n\nbody text")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "# Notes\n\nbody text", resp["content"])
	assert.Equal(t, "text/markdown", resp["fileType"])
	assert.EqualValues(t, 18, resp["fileSize"])
	assert.Equal(t, false, resp["isImage"])

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, token, "photo.png", "image/png", []byte("\x89PNG\r\n\x1a\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded.", errorOf(t, rec))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, RouterOptions{RateLimit: 3})

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodGet, "/api/conversations", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests, please slow down.", errorOf(t, rec))

	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPLimiter_EvictsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newIPLimiter(1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(10 * time.Minute)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Len(t, l.visitors, 1)
	assert.True(t, l.allow("10.0.0.1"))
}
