package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RichardoC/orion/internal/models"
	"github.com/sashabaranov/go-openai"
)

// OpenAI streams through the go-openai client; BaseURL may point at any
// compatible vendor.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(baseURL, apiKey, model string, maxTokens int) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *OpenAI) Stream(ctx context.Context, messages []Message, fn DeltaFunc) error {
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Stream:    true,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read completion stream: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := fn(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func openAIRole(role models.Role) string {
	switch role {
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
