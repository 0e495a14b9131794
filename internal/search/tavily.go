package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// Tavily queries the Tavily search API.
type Tavily struct {
	endpoint   string
	apiKey     string
	maxResults int
	client     *http.Client
	logger     *zap.Logger
}

func NewTavily(endpoint, apiKey string, maxResults int, timeout time.Duration, logger *zap.Logger) *Tavily {
	if endpoint == "" {
		endpoint = DefaultTavilyEndpoint
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Tavily{
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

func (t *Tavily) Search(ctx context.Context, query string) Result {
	if t.apiKey == "" {
		return Result{}
	}

	res, err := t.search(ctx, query)
	if err != nil {
		t.logger.Warn("Web search failed", zap.Error(err), zap.String("query", query))
		return Result{}
	}
	if len(res.Hits) > t.maxResults {
		res.Hits = res.Hits[:t.maxResults]
	}
	return res
}

func (t *Tavily) search(ctx context.Context, query string) (Result, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    t.maxResults,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("tavily returned %d: %s", resp.StatusCode, snippet)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode tavily response: %w", err)
	}
	return out, nil
}
