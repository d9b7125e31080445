// Package config reads the process configuration from the environment,
// optionally seeded from a .env.dev file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	RedisAddr string

	VectorBackend    string // qdrant | pgvector
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	DatabaseURL      string
	PgTable          string

	LLMPrimary          string // openai | gemini
	OpenAIAPIKey        string
	OpenAIChatModel     string
	OpenAIEmbedModel    string
	GoogleProject       string
	GoogleLocation      string
	GeminiModel         string
	GeminiFallbackModel string
	GeminiEmbedModel    string

	EmbeddingProvider string // openai | gemini
	EmbeddingDim      int

	RetrievalTopK        int
	RetrievalMinScore    float32
	RetrievalRelaxFactor float32
	DedupJaccard         float64

	HistoryMaxTurns int
	HistoryRetain   int

	EmbedTimeout      time.Duration
	SearchTimeout     time.Duration
	GenerationTimeout time.Duration
	MaxTokens         int
	Temperature       float32

	DedupWindow  time.Duration
	DedupBackend string // memory | redis

	ProfileLLMExtraction bool
	OutboundWebhookURL   string

	AgentName  string
	AgencyName string
}

// Load reads .env.dev when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.dev"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env.dev: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:     str("PORT", "8080"),
		Env:      str("ENV", "prod"),
		LogLevel: str("LOG_LEVEL", "info"),

		RedisAddr: str("REDIS_ADDR", "localhost:6379"),

		VectorBackend:    strings.ToLower(str("VECTOR_BACKEND", "qdrant")),
		QdrantHost:       str("QDRANT_HOST", "localhost"),
		QdrantPort:       p.int("QDRANT_PORT", 6334),
		QdrantCollection: str("QDRANT_COLLECTION", "insurance_knowledge"),
		DatabaseURL:      str("DATABASE_URL", "postgres://postgres@localhost/postgres?sslmode=disable"),
		PgTable:          str("PG_TABLE", "insurance_knowledge"),

		LLMPrimary:          strings.ToLower(str("LLM_PRIMARY", "openai")),
		OpenAIAPIKey:        str("OPENAI_API_KEY", ""),
		OpenAIChatModel:     str("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel:    str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		GoogleProject:       str("GOOGLE_CLOUD_PROJECT", ""),
		GoogleLocation:      str("GOOGLE_CLOUD_LOCATION", "us-central1"),
		GeminiModel:         str("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiFallbackModel: str("GEMINI_FALLBACK_MODEL", "gemini-2.0-flash"),
		GeminiEmbedModel:    str("GEMINI_EMBED_MODEL", "gemini-embedding-001"),

		EmbeddingProvider: strings.ToLower(str("EMBEDDING_PROVIDER", "openai")),
		EmbeddingDim:      p.int("EMBEDDING_DIM", 1536),

		RetrievalTopK:        p.int("RETRIEVAL_TOP_K", 8),
		RetrievalMinScore:    p.float32("RETRIEVAL_MIN_SCORE", 0.60),
		RetrievalRelaxFactor: p.float32("RETRIEVAL_RELAX_FACTOR", 0.9),
		DedupJaccard:         float64(p.float32("DEDUP_JACCARD", 0.9)),

		HistoryMaxTurns: p.int("HISTORY_MAX_TURNS", 10),
		HistoryRetain:   p.int("HISTORY_RETAIN", 200),

		EmbedTimeout:      p.duration("EMBED_TIMEOUT", 5*time.Second),
		SearchTimeout:     p.duration("SEARCH_TIMEOUT", 5*time.Second),
		GenerationTimeout: p.duration("GENERATION_TIMEOUT", 20*time.Second),
		MaxTokens:         p.int("GENERATION_MAX_TOKENS", 600),
		Temperature:       p.float32("GENERATION_TEMPERATURE", 0.3),

		DedupWindow:  p.duration("DEDUP_WINDOW", 10*time.Minute),
		DedupBackend: strings.ToLower(str("DEDUP_BACKEND", "memory")),

		ProfileLLMExtraction: p.bool("PROFILE_LLM_EXTRACTION", false),
		OutboundWebhookURL:   str("OUTBOUND_WEBHOOK_URL", ""),

		AgentName:  str("AGENT_NAME", "נועם"),
		AgencyName: str("AGENCY_NAME", "מגן ביטוחים"),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.VectorBackend {
	case "qdrant", "pgvector":
	default:
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND must be qdrant or pgvector, got %q", c.VectorBackend))
	}
	switch c.LLMPrimary {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("LLM_PRIMARY must be openai or gemini, got %q", c.LLMPrimary))
	}
	switch c.EmbeddingProvider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be openai or gemini, got %q", c.EmbeddingProvider))
	}
	switch c.DedupBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("DEDUP_BACKEND must be memory or redis, got %q", c.DedupBackend))
	}
	if c.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be positive"))
	} else if model := c.embedModel(); maxEmbeddingDims[model] > 0 && c.EmbeddingDim > maxEmbeddingDims[model] {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM %d exceeds the %d dimensions %s produces",
			c.EmbeddingDim, maxEmbeddingDims[model], model))
	}
	if c.RetrievalTopK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TOP_K must be positive"))
	}
	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		errs = append(errs, errors.New("RETRIEVAL_MIN_SCORE must be within [0,1]"))
	}
	if c.RetrievalRelaxFactor <= 0 || c.RetrievalRelaxFactor > 1 {
		errs = append(errs, errors.New("RETRIEVAL_RELAX_FACTOR must be within (0,1]"))
	}
	if c.DedupJaccard <= 0 || c.DedupJaccard > 1 {
		errs = append(errs, errors.New("DEDUP_JACCARD must be within (0,1]"))
	}
	if c.HistoryMaxTurns <= 0 {
		errs = append(errs, errors.New("HISTORY_MAX_TURNS must be positive"))
	}
	if c.HistoryRetain < c.HistoryMaxTurns {
		errs = append(errs, errors.New("HISTORY_RETAIN must be at least HISTORY_MAX_TURNS"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, errors.New("GENERATION_MAX_TOKENS must be positive"))
	}
	return errors.Join(errs...)
}

// maxEmbeddingDims lists the output size of known embedding models. Models
// not listed are not checked.
var maxEmbeddingDims = map[string]int{
	"text-embedding-3-small":          1536,
	"text-embedding-3-large":          3072,
	"text-embedding-ada-002":          1536,
	"gemini-embedding-001":            3072,
	"text-embedding-004":              768,
	"text-embedding-005":              768,
	"text-multilingual-embedding-002": 768,
}

func (c *Config) embedModel() string {
	if c.EmbeddingProvider == "gemini" {
		return c.GeminiEmbedModel
	}
	return c.OpenAIEmbedModel
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float32(key string, def float32) float32 {
	v := str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return float32(f)
}

func (p *parser) bool(key string, def bool) bool {
	v := str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
