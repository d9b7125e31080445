package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/observability"

	"go.uber.org/zap"
)

type ResilientProvider struct {
	primary    repository.AIProvider
	fallback   repository.AIProvider // cheaper model, tried once
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration // cap per generation, both tiers included
	// fallbackShare is the part of timeout reserved for the fallback, so a
	// primary that hangs until its deadline still leaves it time to answer
	fallbackShare time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func NewResilientProvider(primary, fallback repository.AIProvider, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *ResilientProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ResilientProvider{
		primary:       primary,
		fallback:      fallback,
		maxRetries:    2, // 3 attempts on the primary
		baseDelay:     500 * time.Millisecond,
		timeout:       timeout,
		fallbackShare: timeout / 3,
		logger:        logger.Named("provider"),
		metrics:       metrics,
	}
}

func (r *ResilientProvider) Generate(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	primaryBudget := r.timeout
	if r.fallback != nil {
		primaryBudget -= r.fallbackShare
	}
	primaryCtx, cancel := context.WithTimeout(ctx, primaryBudget)
	defer cancel()

	started := time.Now()
	resp, err := r.executeWithRetry(primaryCtx, r.primary, req)
	if err == nil {
		return r.finish(resp, started)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrUpstreamUnavailable, err)
	}

	r.logger.Warn("primary exhausted, switching to fallback", zap.Error(err))

	fallbackCtx, cancelFallback := context.WithTimeout(ctx, r.fallbackShare)
	defer cancelFallback()
	resp, err = r.fallback.Generate(fallbackCtx, req)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = entity.ErrEmptyCompletion
	}
	if err != nil {
		return nil, fmt.Errorf("%w: both primary and fallback failed: %v", entity.ErrUpstreamUnavailable, err)
	}
	if r.metrics != nil {
		r.metrics.ProviderFallbacks.Inc()
	}
	if resp.Metadata == nil {
		resp.Metadata = make(map[string]any)
	}
	resp.Metadata["fallback_used"] = true
	return r.finish(resp, started)
}

func (r *ResilientProvider) finish(resp *entity.AIResponse, started time.Time) (*entity.AIResponse, error) {
	if resp.Latency == 0 {
		resp.Latency = time.Since(started).Milliseconds()
	}
	return resp, nil
}

func (r *ResilientProvider) executeWithRetry(ctx context.Context, p repository.AIProvider, req entity.CompletionRequest) (*entity.AIResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := p.Generate(ctx, req)
		if err == nil && strings.TrimSpace(resp.Content) == "" {
			err = entity.ErrEmptyCompletion
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !r.isRetryable(err) || attempt == r.maxRetries {
			break
		}

		wait := r.calculateBackoff(attempt)
		select {
		case <-time.After(wait):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *ResilientProvider) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	// rate limits (429) and server errors (5xx)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "deadline")
}

func (r *ResilientProvider) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.baseDelay) * float64(int(1)<<attempt)
	jitter := (rand.Float64() * 0.2) * backoff // 20% jitter
	return time.Duration(backoff + jitter)
}
