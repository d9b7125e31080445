package usecase

import (
	"context"
	"errors"
	"testing"

	"insurebot-core/internal/adapter/store"
	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/intent"
	"insurebot-core/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pipeline struct {
	orch     *Orchestrator
	memory   *flakyMemory
	provider *fakeProvider
	sender   *recordingSender
	metrics  *observability.Metrics
	tpl      Templates
}

type pipelineOpts struct {
	candidates []entity.Candidate
	provider   *fakeProvider
	deduper    *fakeDeduper
	extractor  *fakeExtractor
}

// newPipeline wires the real retrieval engine and composer over fakes at the
// network boundary.
func newPipeline(t *testing.T, o pipelineOpts) *pipeline {
	t.Helper()
	if o.provider == nil {
		o.provider = echoing()
	}
	m := observability.NewMetrics()
	tpl := testTemplates(t)
	engine := NewRetrievalEngine(constEmbedder(1, 0, 0), staticStore(o.candidates...), testRetrievalConfig(), zap.NewNop(), m)
	composer := NewComposer(engine, o.provider, intent.DefaultFollowUpDetector(), tpl,
		GenerationConfig{MaxTokens: 600, Temperature: 0.3}, zap.NewNop(), m)
	mem := &flakyMemory{InMemoryMemory: store.NewInMemoryMemory(50)}
	sender := &recordingSender{}

	deps := OrchestratorDeps{
		Memory:    mem,
		Composer:  composer,
		Templates: tpl,
		Sender:    sender,
		MaxTurns:  10,
		Logger:    zap.NewNop(),
		Metrics:   m,
	}
	if o.deduper != nil {
		deps.Deduper = o.deduper
	}
	if o.extractor != nil {
		deps.Extractor = o.extractor
	}
	return &pipeline{
		orch:     NewOrchestrator(deps),
		memory:   mem,
		provider: o.provider,
		sender:   sender,
		metrics:  m,
		tpl:      tpl,
	}
}

func inbound(user, id, text string) entity.InboundMessage {
	return entity.InboundMessage{UserID: user, MessageID: id, Text: text}
}

func TestHandleMessage_GreetingScenario(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})

	reply, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "שלום"))
	require.NoError(t, err)
	assert.Equal(t, p.tpl.Greeting, reply.Text)
	assert.Equal(t, entity.IntentGreeting, reply.Intent)
	assert.Zero(t, p.provider.calls())

	history, _ := p.memory.GetHistory(context.Background(), "u1", 10)
	require.Len(t, history, 1)
	assert.Equal(t, "שלום", history[0].User)
	assert.Equal(t, p.tpl.Greeting, history[0].Bot)
	assert.Equal(t, "greeting", history[0].Meta["intent"])
	assert.Equal(t, []string{p.tpl.Greeting}, p.sender.sent)
}

func TestHandleMessage_SingleMatchScenario(t *testing.T) {
	answer := "ביטוח מבנה מכסה את שלד הדירה, ואילו ביטוח תכולה מכסה את החפצים שבתוכה."
	p := newPipeline(t, pipelineOpts{candidates: []entity.Candidate{
		candidate("מה ההבדל בין ביטוח מבנה לתכולה", "מה ההבדל בין ביטוח מבנה לתכולה", answer, 0, 0.05),
	}})

	reply, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "מה ההבדל בין ביטוח מבנה לתכולה?"))
	require.NoError(t, err)
	assert.Equal(t, entity.RouteMerged, reply.Route)
	assert.Contains(t, reply.Text, answer)
	require.Len(t, reply.Matches, 1)
	assert.InDelta(t, 0.95, reply.Matches[0].Score, 1e-6)
}

func TestHandleMessage_ErasureScenario(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})
	ctx := context.Background()
	_, err := p.orch.HandleMessage(ctx, inbound("u1", "m1", "קוראים לי דנה ואני גרה בחיפה"))
	require.NoError(t, err)

	reply, err := p.orch.HandleMessage(ctx, inbound("u1", "m2", "מחק את הנתונים שלי"))
	require.NoError(t, err)
	assert.Equal(t, entity.RouteErasure, reply.Route)
	assert.Equal(t, p.tpl.ErasureDone, reply.Text)

	history, _ := p.memory.GetHistory(ctx, "u1", 10)
	assert.Empty(t, history)
	profile, _ := p.memory.GetProfile(ctx, "u1")
	assert.Equal(t, entity.NewProfile("u1"), profile)
}

func TestHandleMessage_ErasureFailureIsRetriedAndReported(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})
	p.memory.failErase = true

	reply, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "Delete my data"))
	assert.ErrorIs(t, err, entity.ErrErasureFailed)
	assert.Equal(t, p.tpl.ErasureFailed, reply.Text)
	assert.Equal(t, int32(2), p.memory.eraseCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.MemoryFailures.WithLabelValues("erase")))
}

func TestHandleMessage_UpdatesProfileAndStage(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})
	ctx := context.Background()

	_, err := p.orch.HandleMessage(ctx, inbound("u1", "m1", "כמה עולה ביטוח דירה?"))
	require.NoError(t, err)
	profile, _ := p.memory.GetProfile(ctx, "u1")
	assert.Equal(t, entity.StageInterested, profile.Stage)
	assert.Equal(t, "m1", profile.LastMessageID)

	_, err = p.orch.HandleMessage(ctx, inbound("u1", "m2", "קוראים לי דנה ואני גרה בחיפה"))
	require.NoError(t, err)
	profile, _ = p.memory.GetProfile(ctx, "u1")
	assert.Equal(t, entity.StageCollectingInfo, profile.Stage)
	assert.Equal(t, "דנה", profile.FirstName)
	assert.Equal(t, "חיפה", profile.City)

	_, err = p.orch.HandleMessage(ctx, inbound("u1", "m3", "זה יקר מדי בשבילי"))
	require.NoError(t, err)
	profile, _ = p.memory.GetProfile(ctx, "u1")
	assert.Equal(t, entity.StageHesitant, profile.Stage)
	assert.Equal(t, "דנה", profile.FirstName, "omitted fields stay untouched")
}

func TestHandleMessage_ModelExtractionOnlyForInfoGathering(t *testing.T) {
	value := int64(1_500_000)
	ext := &fakeExtractor{patch: entity.ProfilePatch{HomeValue: &value}}
	p := newPipeline(t, pipelineOpts{extractor: ext})
	ctx := context.Background()

	_, err := p.orch.HandleMessage(ctx, inbound("u1", "m1", "מה זה השתתפות עצמית?"))
	require.NoError(t, err)
	assert.Zero(t, ext.calls.Load())

	_, err = p.orch.HandleMessage(ctx, inbound("u1", "m2", "קוראים לי דנה ואני גרה בחיפה"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ext.calls.Load())
	profile, _ := p.memory.GetProfile(ctx, "u1")
	assert.Equal(t, value, profile.HomeValue)
	assert.Equal(t, "דנה", profile.FirstName)
}

func TestHandleMessage_DropsDuplicates(t *testing.T) {
	p := newPipeline(t, pipelineOpts{deduper: &fakeDeduper{seen: map[string]bool{}}})
	ctx := context.Background()

	_, err := p.orch.HandleMessage(ctx, inbound("u1", "m1", "שלום"))
	require.NoError(t, err)
	_, err = p.orch.HandleMessage(ctx, inbound("u1", "m1", "שלום"))
	assert.ErrorIs(t, err, entity.ErrDuplicateMessage)

	history, _ := p.memory.GetHistory(ctx, "u1", 10)
	assert.Len(t, history, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.DuplicateMessages))
}

func TestHandleMessage_DedupFailureStillProcesses(t *testing.T) {
	p := newPipeline(t, pipelineOpts{deduper: &fakeDeduper{err: errors.New("redis down")}})

	reply, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "שלום"))
	require.NoError(t, err)
	assert.Equal(t, p.tpl.Greeting, reply.Text)
}

func TestHandleMessage_MemoryFailureDoesNotLoseReply(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})
	p.memory.failAppend = true

	reply, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "שלום"))
	require.NoError(t, err)
	assert.Equal(t, p.tpl.Greeting, reply.Text)
	assert.Equal(t, int32(2), p.memory.appendCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.MemoryFailures.WithLabelValues("append_exchange")))
}

func TestHandleMessage_RetriedAppendRecordsTurnOnce(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})
	p.memory.lostReplies.Store(1)

	_, err := p.orch.HandleMessage(context.Background(), inbound("u1", "m1", "שלום"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), p.memory.appendCalls.Load())
	history, _ := p.memory.GetHistory(context.Background(), "u1", 10)
	assert.Len(t, history, 1)
}

func TestHandleMessage_FollowUpAfterGreetingSkipsRetrieval(t *testing.T) {
	p := newPipeline(t, pipelineOpts{provider: replying("שלום, אני נועם ממגן ביטוחים. בקצרה: מבנה זה הקירות.")})
	ctx := context.Background()

	_, err := p.orch.HandleMessage(ctx, inbound("u1", "m1", "שלום"))
	require.NoError(t, err)
	reply, err := p.orch.HandleMessage(ctx, inbound("u1", "m2", "תסביר שוב"))
	require.NoError(t, err)

	assert.Equal(t, entity.RouteFollowUp, reply.Route)
	assert.Equal(t, "בקצרה: מבנה זה הקירות.", reply.Text)
	assert.Zero(t, testutil.ToFloat64(p.metrics.RetrievalOutcomes.WithLabelValues(observability.OutcomeMatched)))
	assert.Zero(t, testutil.ToFloat64(p.metrics.RetrievalOutcomes.WithLabelValues(observability.OutcomeNoMatch)))
}

func TestHandleMessage_RequiresUser(t *testing.T) {
	p := newPipeline(t, pipelineOpts{})

	_, err := p.orch.HandleMessage(context.Background(), inbound("", "m1", "שלום"))
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
}
