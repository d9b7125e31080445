package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/intent"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/observability"

	"go.uber.org/zap"
)

// persistTimeout bounds the memory writes done after a reply is composed.
const persistTimeout = 5 * time.Second

type OrchestratorDeps struct {
	Memory     repository.ConversationMemory
	Composer   *Composer
	Classifier *intent.Classifier
	Templates  Templates
	Deduper    repository.MessageDeduper   // optional
	Extractor  repository.ProfileExtractor // optional, used for info_gathering
	Sender     repository.Sender           // optional
	MaxTurns   int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Orchestrator runs one inbound message through the pipeline: dedup,
// classification, profile update, composition and persistence.
type Orchestrator struct {
	memory     repository.ConversationMemory
	composer   *Composer
	classifier *intent.Classifier
	templates  Templates
	deduper    repository.MessageDeduper
	extractor  repository.ProfileExtractor
	sender     repository.Sender
	maxTurns   int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.MaxTurns <= 0 {
		d.MaxTurns = 10
	}
	if d.Classifier == nil {
		d.Classifier = intent.DefaultClassifier()
	}
	return &Orchestrator{
		memory:     d.Memory,
		composer:   d.Composer,
		classifier: d.Classifier,
		templates:  d.Templates,
		deduper:    d.Deduper,
		extractor:  d.Extractor,
		sender:     d.Sender,
		maxTurns:   d.MaxTurns,
		logger:     d.Logger.Named("orchestrator"),
		metrics:    d.Metrics,
	}
}

// HandleMessage returns the reply for msg. It fails with
// entity.ErrDuplicateMessage for a redelivered message id and with
// entity.ErrErasureFailed when an erasure command could not be carried out;
// in the latter case the reply still holds the text sent to the user.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg entity.InboundMessage) (entity.Reply, error) {
	if msg.UserID == "" {
		return entity.Reply{}, fmt.Errorf("%w: user id is required", entity.ErrInvalidRequest)
	}
	log := o.logger.With(zap.String("user_id", msg.UserID), zap.String("message_id", msg.MessageID))

	if o.deduper != nil && msg.MessageID != "" {
		seen, err := o.deduper.MarkSeen(ctx, msg.MessageID)
		if err != nil {
			log.Warn("dedup check failed, processing anyway", zap.Error(err))
		} else if seen {
			if o.metrics != nil {
				o.metrics.DuplicateMessages.Inc()
			}
			log.Info("duplicate message dropped")
			return entity.Reply{}, entity.ErrDuplicateMessage
		}
	}

	if o.classifier.IsErasure(msg.Text) {
		return o.handleErasure(ctx, msg)
	}

	profile := entity.NewProfile(msg.UserID)
	if err := o.retryOnce(ctx, "get_profile", func() error {
		p, err := o.memory.GetProfile(ctx, msg.UserID)
		if err == nil {
			profile = p
		}
		return err
	}); err != nil {
		log.Warn("profile unavailable, using defaults", zap.Error(err))
	}

	var history []entity.ConversationTurn
	if err := o.retryOnce(ctx, "get_history", func() error {
		h, err := o.memory.GetHistory(ctx, msg.UserID, o.maxTurns)
		if err == nil {
			history = h
		}
		return err
	}); err != nil {
		log.Warn("history unavailable, treating as new conversation", zap.Error(err))
	}

	detected := o.classifier.Detect(msg.Text)
	if o.metrics != nil {
		o.metrics.Intents.WithLabelValues(string(detected)).Inc()
	}

	patch := o.extractFacts(ctx, msg.Text, detected)
	if stage, changed := entity.NextStage(detected, profile.Stage); changed {
		patch.Stage = &stage
	}
	if msg.MessageID != "" {
		id := msg.MessageID
		patch.LastMessageID = &id
	}
	profile = patch.Apply(profile)

	reply := o.composer.Compose(ctx, ComposeRequest{
		UserID:   msg.UserID,
		Question: msg.Text,
		History:  history,
		Intent:   detected,
		Profile:  profile,
	})
	log.Info("reply composed",
		zap.String("intent", string(detected)),
		zap.String("route", string(reply.Route)),
		zap.Int("matches", len(reply.Matches)),
	)

	o.persist(ctx, msg, reply, patch)
	o.send(ctx, msg.UserID, reply.Text)
	return reply, nil
}

// EraseUser deletes all history and profile data of a user. The delete is
// retried once; a second failure is logged at error level and returned.
func (o *Orchestrator) EraseUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", entity.ErrInvalidRequest)
	}
	err := o.retryOnce(ctx, "erase", func() error {
		return o.memory.Erase(ctx, userID)
	})
	if err != nil {
		o.logger.Error("user data erasure failed", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %v", entity.ErrErasureFailed, err)
	}
	o.logger.Info("user data erased", zap.String("user_id", userID))
	return nil
}

func (o *Orchestrator) handleErasure(ctx context.Context, msg entity.InboundMessage) (entity.Reply, error) {
	reply := entity.Reply{Text: o.templates.ErasureDone, Intent: entity.IntentDefault, Route: entity.RouteErasure}
	err := o.EraseUser(ctx, msg.UserID)
	if err != nil {
		reply.Text = o.templates.ErasureFailed
	}
	if o.metrics != nil {
		o.metrics.ComposeRoutes.WithLabelValues(string(entity.RouteErasure)).Inc()
	}
	o.send(ctx, msg.UserID, reply.Text)
	return reply, err
}

// extractFacts runs the regex extractor on every message and, for
// info_gathering, lets the model fill what the regexes missed.
func (o *Orchestrator) extractFacts(ctx context.Context, text string, detected entity.Intent) entity.ProfilePatch {
	facts := intent.ExtractProfileFacts(text)
	if o.extractor == nil || detected != entity.IntentInfoGathering {
		return facts
	}
	return o.extractor.ExtractProfile(ctx, text).Merge(facts)
}

func (o *Orchestrator) persist(ctx context.Context, msg entity.InboundMessage, reply entity.Reply, patch entity.ProfilePatch) {
	// the caller may hang up once the reply is composed; the exchange must
	// still be recorded
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	meta := map[string]string{
		entity.MetaIntent: string(reply.Intent),
		entity.MetaRoute:  string(reply.Route),
	}
	if msg.MessageID != "" {
		meta[entity.MetaMessageID] = msg.MessageID
	}
	if err := o.retryOnce(pctx, "append_exchange", func() error {
		return o.memory.AppendExchange(pctx, msg.UserID, msg.Text, reply.Text, meta)
	}); err != nil {
		o.logger.Error("failed to append exchange", zap.String("user_id", msg.UserID), zap.Error(err))
	}

	if patch.Empty() {
		return
	}
	if err := o.retryOnce(pctx, "update_profile", func() error {
		return o.memory.UpdateProfile(pctx, msg.UserID, patch)
	}); err != nil {
		o.logger.Error("failed to update profile", zap.String("user_id", msg.UserID), zap.Error(err))
	}
}

func (o *Orchestrator) send(ctx context.Context, userID, text string) {
	if o.sender == nil {
		return
	}
	res := o.sender.Send(ctx, userID, text)
	if !res.Success {
		o.logger.Warn("outbound send failed", zap.String("user_id", userID), zap.String("error", res.Error))
	}
}

// retryOnce runs fn, and once more if it fails. A final failure is counted
// against op.
func (o *Orchestrator) retryOnce(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		err = fn()
	}
	if err != nil && o.metrics != nil {
		o.metrics.MemoryFailures.WithLabelValues(op).Inc()
	}
	return err
}
