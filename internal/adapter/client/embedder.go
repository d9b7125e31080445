package client

import (
	"context"
	"fmt"

	"insurebot-core/internal/domain/entity"

	"google.golang.org/genai"
)

type Embedder struct {
	client *genai.Client
	model  string // e.g. "gemini-embedding-001"
	dim    int
}

func NewEmbedderFromClient(c *genai.Client, model string, dim int) *Embedder {
	return &Embedder{
		client: c,
		model:  model,
		dim:    dim,
	}
}

func (e *Embedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if e.dim > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(e.dim))}
	}
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", entity.ErrMalformedEmbedding)
	}
	return res.Embeddings[0].Values, nil
}
