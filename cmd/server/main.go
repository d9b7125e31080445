package main

import (
	"context"
	"log"
	"time"

	"insurebot-core/internal/adapter/api"
	"insurebot-core/internal/adapter/cache"
	"insurebot-core/internal/adapter/client"
	"insurebot-core/internal/adapter/store"
	"insurebot-core/internal/adapter/transport"
	"insurebot-core/internal/app"
	"insurebot-core/internal/config"
	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/intent"
	"insurebot-core/internal/observability"
	"insurebot-core/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const version = "1.0.0"

// dedupCapacity bounds the in-process dedup window.
const dedupCapacity = 50_000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	metrics := observability.NewMetrics()

	// Redis keeps conversation memory and, optionally, the dedup window
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	corpus, closeCorpus, err := app.NewCorpus(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("vector store", zap.Error(err))
	}
	defer closeCorpus()

	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		logger.Fatal("model clients", zap.Error(err))
	}
	primary, fallback, err := clients.Providers(cfg)
	if err != nil {
		logger.Fatal("completion providers", zap.Error(err))
	}
	provider := usecase.NewResilientProvider(primary, fallback, cfg.GenerationTimeout, logger, metrics)

	embedder, err := clients.Embedder(cfg)
	if err != nil {
		logger.Fatal("embedder", zap.Error(err))
	}

	templates, err := usecase.LoadTemplates(cfg.AgentName, cfg.AgencyName)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	rc := usecase.DefaultRetrievalConfig()
	rc.TopK = cfg.RetrievalTopK
	rc.MinScore = cfg.RetrievalMinScore
	rc.RelaxFactor = cfg.RetrievalRelaxFactor
	rc.DedupJaccard = cfg.DedupJaccard
	rc.EmbedTimeout = cfg.EmbedTimeout
	rc.SearchTimeout = cfg.SearchTimeout
	rc.Dim = cfg.EmbeddingDim
	engine := usecase.NewRetrievalEngine(embedder, corpus, rc, logger, metrics)

	composer := usecase.NewComposer(engine, provider, intent.DefaultFollowUpDetector(), templates,
		usecase.GenerationConfig{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}, logger, metrics)

	deps := usecase.OrchestratorDeps{
		Memory:    store.NewRedisMemory(rdb, cfg.HistoryRetain),
		Composer:  composer,
		Templates: templates,
		MaxTurns:  cfg.HistoryMaxTurns,
		Logger:    logger,
		Metrics:   metrics,
	}
	switch cfg.DedupBackend {
	case "redis":
		deps.Deduper = store.NewRedisDeduper(rdb, cfg.DedupWindow)
	default:
		deps.Deduper = cache.NewDedupWindow(cfg.DedupWindow, dedupCapacity)
	}
	if cfg.ProfileLLMExtraction {
		if clients.GenAI != nil {
			deps.Extractor = client.NewGeminiExtractor(clients.GenAI, cfg.GeminiModel, logger)
		} else {
			logger.Warn("PROFILE_LLM_EXTRACTION set without a Google project, using regex facts only")
		}
	}
	if cfg.OutboundWebhookURL != "" {
		deps.Sender = transport.NewWebhookSender(cfg.OutboundWebhookURL, 10*time.Second)
	}
	orchestrator := usecase.NewOrchestrator(deps)

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := embedder.CreateEmbedding(warmCtx, "warmup"); err != nil {
			logger.Warn("embedder warm-up failed", zap.Error(err))
		}
		_, err := provider.Generate(warmCtx, entity.CompletionRequest{
			Messages:  []entity.ChatMessage{{Role: entity.RoleUser, Content: "."}},
			MaxTokens: 1,
		})
		if err != nil {
			logger.Warn("provider warm-up failed", zap.Error(err))
		}
		logger.Info("pre-warm complete")
	}()

	fiberApp := fiber.New(fiber.Config{
		AppName:               "InsureBot Gateway",
		DisableStartupMessage: cfg.Env != "dev",
	})
	api.SetupRouter(fiberApp, api.NewMessageHandler(orchestrator), api.RouterConfig{
		Env:       cfg.Env,
		Version:   version,
		Metrics:   metrics,
		AccessLog: cfg.Env == "dev",
	})

	logger.Info("gateway listening",
		zap.String("port", cfg.Port),
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("llm_primary", cfg.LLMPrimary))
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
