package client

import (
	"context"
	"strings"
	"time"

	"insurebot-core/internal/domain/entity"

	"google.golang.org/genai"
)

// NewGenAI connects to Gemini on Vertex AI.
func NewGenAI(ctx context.Context, projectID, location string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
}

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClientFromClient(c *genai.Client, model string) *GeminiClient {
	return &GeminiClient{
		client: c,
		model:  model,
	}
}

// Generate sends system messages as the system instruction and the rest as
// the conversation.
func (g *GeminiClient) Generate(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case entity.RoleSystem:
			system = append(system, m.Content)
		case entity.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	started := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return nil, entity.ErrEmptyCompletion
	}
	resp := &entity.AIResponse{
		Content: text,
		Model:   g.model,
		Latency: time.Since(started).Milliseconds(),
	}
	if result.UsageMetadata != nil {
		resp.TokenCount = int(result.UsageMetadata.TotalTokenCount)
	}
	return resp, nil
}
