package app

import (
	"context"
	"testing"

	"insurebot-core/internal/adapter/client"
	"insurebot-core/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIOnly() *config.Config {
	return &config.Config{
		LLMPrimary:        "openai",
		EmbeddingProvider: "openai",
		OpenAIAPIKey:      "k",
		OpenAIChatModel:   "gpt-4o-mini",
		OpenAIEmbedModel:  "text-embedding-3-small",
		EmbeddingDim:      1536,
	}
}

func TestClients_OpenAIOnly(t *testing.T) {
	cfg := openAIOnly()
	c, err := NewClients(context.Background(), cfg)
	require.NoError(t, err)

	emb, err := c.Embedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &client.OpenAIEmbedder{}, emb)

	primary, fallback, err := c.Providers(cfg)
	require.NoError(t, err)
	assert.IsType(t, &client.OpenAIClient{}, primary)
	assert.Nil(t, fallback)
}

func TestClients_MissingProvider(t *testing.T) {
	cfg := openAIOnly()
	cfg.OpenAIAPIKey = ""
	c, err := NewClients(context.Background(), cfg)
	require.NoError(t, err)

	_, err = c.Embedder(cfg)
	assert.Error(t, err)
	_, _, err = c.Providers(cfg)
	assert.Error(t, err)

	cfg.EmbeddingProvider = "gemini"
	_, err = c.Embedder(cfg)
	assert.ErrorContains(t, err, "GOOGLE_CLOUD_PROJECT")
}

func TestNewCorpus_UnknownBackend(t *testing.T) {
	_, _, err := NewCorpus(context.Background(), &config.Config{VectorBackend: "sqlite"}, nil)
	assert.Error(t, err)
}
