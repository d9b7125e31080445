package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newResilient(primary, fallback *fakeProvider) (*ResilientProvider, *observability.Metrics) {
	m := observability.NewMetrics()
	var fb repository.AIProvider
	if fallback != nil {
		fb = fallback
	}
	r := NewResilientProvider(primary, fb, time.Second, zap.NewNop(), m)
	r.baseDelay = time.Millisecond
	return r, m
}

func TestResilientProvider_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	primary := &fakeProvider{fn: func(entity.CompletionRequest) (*entity.AIResponse, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("status 503: model overloaded")
		}
		return &entity.AIResponse{Content: "ok", Model: "primary"}, nil
	}}
	fallback := replying("fallback")
	r, m := newResilient(primary, fallback)

	resp, err := r.Generate(context.Background(), entity.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, attempts)
	assert.Zero(t, fallback.calls())
	assert.Zero(t, testutil.ToFloat64(m.ProviderFallbacks))
}

func TestResilientProvider_FallsBackOnPermanentError(t *testing.T) {
	primary := failing(errors.New("invalid api key"))
	fallback := replying("from fallback")
	r, m := newResilient(primary, fallback)

	resp, err := r.Generate(context.Background(), entity.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
	assert.Equal(t, true, resp.Metadata["fallback_used"])
	assert.Equal(t, 1, primary.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFallbacks))
}

func TestResilientProvider_EmptyPrimaryCompletionFallsBack(t *testing.T) {
	fallback := replying("non-empty")
	r, _ := newResilient(replying(""), fallback)

	resp, err := r.Generate(context.Background(), entity.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "non-empty", resp.Content)
}

func TestResilientProvider_BothFail(t *testing.T) {
	r, _ := newResilient(failing(errors.New("500 internal")), failing(errors.New("bad request")))

	_, err := r.Generate(context.Background(), entity.CompletionRequest{})
	assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)
}

func TestResilientProvider_NoFallbackConfigured(t *testing.T) {
	r, _ := newResilient(failing(errors.New("bad request")), nil)

	_, err := r.Generate(context.Background(), entity.CompletionRequest{})
	assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)
}

// hangingProvider blocks until its context ends.
type hangingProvider struct{}

func (hangingProvider) Generate(ctx context.Context, _ entity.CompletionRequest) (*entity.AIResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// liveContextProvider answers only while its context is still usable.
type liveContextProvider struct{ remaining time.Duration }

func (p *liveContextProvider) Generate(ctx context.Context, _ entity.CompletionRequest) (*entity.AIResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		p.remaining = time.Until(dl)
	}
	return &entity.AIResponse{Content: "fallback answer"}, nil
}

func TestResilientProvider_FallbackGetsItsOwnBudget(t *testing.T) {
	fallback := &liveContextProvider{}
	r := NewResilientProvider(hangingProvider{}, fallback, 90*time.Millisecond, zap.NewNop(), observability.NewMetrics())
	r.baseDelay = time.Millisecond

	started := time.Now()
	resp, err := r.Generate(context.Background(), entity.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Content)
	assert.Greater(t, fallback.remaining, 10*time.Millisecond)
	assert.Less(t, time.Since(started), time.Second)
}

func TestResilientProvider_CallerCancellationStopsBothTiers(t *testing.T) {
	fallback := &liveContextProvider{}
	r := NewResilientProvider(hangingProvider{}, fallback, time.Second, zap.NewNop(), observability.NewMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, entity.CompletionRequest{})
	assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)
	assert.Zero(t, fallback.remaining)
}
