package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/orion/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Conversation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"createdAt"`
	Messages  []models.Message `json:"messages"`
}

type Upload struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	IsImage  bool   `json:"isImage"`
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	FileContent    string `json:"fileContent,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	IsImage        bool   `json:"isImage,omitempty"`
}

// API is a client for the server's /api routes. It remembers the token
// returned by Signup or Login.
type API struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (a *API) Signup(ctx context.Context, email, password string) (*models.User, error) {
	return a.authenticate(ctx, "/api/auth/signup", email, password)
}

func (a *API) Login(ctx context.Context, email, password string) (*models.User, error) {
	return a.authenticate(ctx, "/api/auth/login", email, password)
}

func (a *API) authenticate(ctx context.Context, path, email, password string) (*models.User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return resp.User, nil
}

func (a *API) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *API) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (a *API) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := a.doJSON(ctx, http.MethodGet, "/api/conversations/"+id, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) DeleteConversation(ctx context.Context, id string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// Upload sends a document for text extraction.
func (a *API) Upload(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(filename)))
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := a.newRequest(ctx, http.MethodPost, "/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var up Upload
	if err := a.send(req, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

// openStream starts a chat turn and returns the event stream body.
func (a *API) openStream(ctx context.Context, chat chatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(chat)
	if err != nil {
		return nil, err
	}
	req, err := a.newRequest(ctx, http.MethodPost, "/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (a *API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (a *API) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, out)
}

func (a *API) send(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
