// Package llm streams chat completions from an upstream model API.
package llm

import (
	"context"
	"fmt"

	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/models"
)

type Message struct {
	Role    models.Role
	Content string
}

// DeltaFunc receives each text fragment as it arrives. Returning an error
// stops the stream and is returned from Stream.
type DeltaFunc func(delta string) error

// Provider produces an incremental completion for an ordered prompt.
// Fragments are passed to fn in arrival order and empty fragments are dropped.
// Cancelling ctx aborts the upstream request.
type Provider interface {
	Stream(ctx context.Context, messages []Message, fn DeltaFunc) error
}

// New builds the provider named by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "langchain":
		return NewLangChain(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
