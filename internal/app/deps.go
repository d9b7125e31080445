// Package app builds the adapters both binaries share from configuration.
package app

import (
	"context"
	"fmt"

	"insurebot-core/internal/adapter/client"
	"insurebot-core/internal/adapter/store"
	"insurebot-core/internal/config"
	"insurebot-core/internal/domain/repository"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Corpus is a vector store that can also be written to.
type Corpus interface {
	repository.VectorStore
	repository.KnowledgeWriter
}

// Clients holds the upstream model clients; a nil field means the provider
// is not configured.
type Clients struct {
	OpenAI *openai.Client
	GenAI  *genai.Client
}

func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	var c Clients
	if cfg.OpenAIAPIKey != "" {
		c.OpenAI = client.NewOpenAI(cfg.OpenAIAPIKey, "")
	}
	if cfg.GoogleProject != "" {
		g, err := client.NewGenAI(ctx, cfg.GoogleProject, cfg.GoogleLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to init genai client: %w", err)
		}
		c.GenAI = g
	}
	return &c, nil
}

func (c *Clients) Embedder(cfg *config.Config) (repository.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if c.OpenAI == nil {
			return nil, fmt.Errorf("EMBEDDING_PROVIDER=openai needs OPENAI_API_KEY")
		}
		return client.NewOpenAIEmbedder(c.OpenAI, cfg.OpenAIEmbedModel, cfg.EmbeddingDim), nil
	case "gemini":
		if c.GenAI == nil {
			return nil, fmt.Errorf("EMBEDDING_PROVIDER=gemini needs GOOGLE_CLOUD_PROJECT")
		}
		return client.NewEmbedderFromClient(c.GenAI, cfg.GeminiEmbedModel, cfg.EmbeddingDim), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

// Providers returns the primary completion provider and the fallback, which
// may be nil.
func (c *Clients) Providers(cfg *config.Config) (primary, fallback repository.AIProvider, err error) {
	var openaiP, geminiP, geminiFallback repository.AIProvider
	if c.OpenAI != nil {
		openaiP = client.NewOpenAIClient(c.OpenAI, cfg.OpenAIChatModel)
	}
	if c.GenAI != nil {
		geminiP = client.NewGeminiClientFromClient(c.GenAI, cfg.GeminiModel)
		geminiFallback = client.NewGeminiClientFromClient(c.GenAI, cfg.GeminiFallbackModel)
	}

	switch cfg.LLMPrimary {
	case "openai":
		primary, fallback = openaiP, geminiP
	case "gemini":
		primary, fallback = geminiP, openaiP
		if fallback == nil {
			fallback = geminiFallback
		}
	}
	if primary == nil {
		return nil, nil, fmt.Errorf("LLM_PRIMARY=%s is not configured", cfg.LLMPrimary)
	}
	return primary, fallback, nil
}

// NewCorpus connects to the configured vector backend. The returned func
// releases its connections.
func NewCorpus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Corpus, func(), error) {
	switch cfg.VectorBackend {
	case "pgvector":
		pool, err := store.NewPgPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPgVectorStore(pool, cfg.PgTable), pool.Close, nil
	case "qdrant":
		qc, err := qdrant.NewClient(&qdrant.Config{Host: cfg.QdrantHost, Port: cfg.QdrantPort})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		return store.NewQdrantStore(qc, cfg.QdrantCollection, logger), func() { _ = qc.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
}
