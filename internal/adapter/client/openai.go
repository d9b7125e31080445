package client

import (
	"context"
	"fmt"
	"time"

	"insurebot-core/internal/domain/entity"

	"github.com/sashabaranov/go-openai"
)

// NewOpenAI builds an API client. baseURL is only set in tests and for
// OpenAI-compatible gateways.
func NewOpenAI(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(c *openai.Client, model string) *OpenAIClient {
	return &OpenAIClient{client: c, model: model}
}

func (o *OpenAIClient) Generate(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               o.model,
		Messages:            msgs,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, entity.ErrEmptyCompletion
	}
	return &entity.AIResponse{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokenCount: resp.Usage.TotalTokens,
		Latency:    time.Since(started).Milliseconds(),
		Metadata:   map[string]any{"finish_reason": string(resp.Choices[0].FinishReason)},
	}, nil
}

func openAIRole(role string) string {
	switch role {
	case entity.RoleSystem:
		return openai.ChatMessageRoleSystem
	case entity.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(c *openai.Client, model string, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: c, model: model, dim: dim}
}

func (e *OpenAIEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", entity.ErrMalformedEmbedding)
	}
	return resp.Data[0].Embedding, nil
}
