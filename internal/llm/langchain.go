package llm

import (
	"context"
	"fmt"

	"github.com/RichardoC/orion/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangChain talks to any OpenAI-compatible endpoint through langchaingo.
type LangChain struct {
	llm       llms.Model
	maxTokens int
}

func NewLangChain(baseURL, token, model string, maxTokens int) (*LangChain, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &LangChain{llm: llm, maxTokens: maxTokens}, nil
}

// NewLangChainWithModel wraps an existing langchaingo model.
func NewLangChainWithModel(model llms.Model, maxTokens int) *LangChain {
	return &LangChain{llm: model, maxTokens: maxTokens}
}

func (l *LangChain) Stream(ctx context.Context, messages []Message, fn DeltaFunc) error {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	_, err := l.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(l.maxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to generate completion: %w", err)
	}
	return nil
}

func chatMessageType(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
