package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/intent"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/domain/textnorm"
	"insurebot-core/internal/observability"

	"go.uber.org/zap"
)

// Retriever is the part of the retrieval engine the composer depends on.
type Retriever interface {
	LookupAll(ctx context.Context, questions []string, opts LookupOptions) [][]entity.RetrievalMatch
	Options(profile *entity.UserProfile) LookupOptions
}

type ComposeRequest struct {
	UserID   string
	Question string
	History  []entity.ConversationTurn
	Intent   entity.Intent
	Profile  entity.UserProfile
}

type GenerationConfig struct {
	MaxTokens   int
	Temperature float32
}

// Composer builds the single reply sent back for a message.
type Composer struct {
	retriever Retriever
	provider  repository.AIProvider
	followUp  *intent.FollowUpDetector
	templates Templates
	gen       GenerationConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewComposer(r Retriever, ai repository.AIProvider, fu *intent.FollowUpDetector, t Templates, gen GenerationConfig, logger *zap.Logger, metrics *observability.Metrics) *Composer {
	if gen.MaxTokens <= 0 {
		gen.MaxTokens = 600
	}
	return &Composer{
		retriever: r,
		provider:  ai,
		followUp:  fu,
		templates: t,
		gen:       gen,
		logger:    logger.Named("composer"),
		metrics:   metrics,
	}
}

// Compose never returns an empty reply. Any failure, including a panic in a
// collaborator, yields the apology template.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) (reply entity.Reply) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("compose panicked", zap.String("user_id", req.UserID), zap.Any("panic", r))
			reply = c.apology(req.Intent)
		}
		if strings.TrimSpace(reply.Text) == "" {
			reply = c.apology(req.Intent)
		}
		if c.metrics != nil {
			c.metrics.ComposeRoutes.WithLabelValues(string(reply.Route)).Inc()
		}
	}()

	// nothing left after normalization: greet instead of asking the model
	// about whitespace
	blank := textnorm.Normalize(req.Question) == ""
	if blank || (req.Intent == entity.IntentGreeting && len(req.History) == 0) {
		return entity.Reply{Text: c.templates.GreetingFor(req.Profile), Intent: req.Intent, Route: entity.RouteGreeting}
	}

	if c.followUp.IsFollowUp(req.Question, req.History) {
		text, err := c.answerFollowUp(ctx, req)
		if err == nil {
			return entity.Reply{Text: text, Intent: req.Intent, Route: entity.RouteFollowUp}
		}
		c.logger.Warn("follow-up completion failed, retrieving instead", zap.String("user_id", req.UserID), zap.Error(err))
	}

	questions := intent.SplitQuestions(req.Question)
	if len(questions) == 0 {
		questions = []string{req.Question}
	}
	profile := req.Profile
	groups := c.retriever.LookupAll(ctx, questions, c.retriever.Options(&profile))

	var all []entity.RetrievalMatch
	for _, g := range groups {
		all = append(all, g...)
	}

	if len(all) == 0 {
		text, err := c.answerUnconditioned(ctx, req.Question)
		if err != nil {
			c.logger.Error("unconditioned completion failed", zap.String("user_id", req.UserID), zap.Error(err))
			return c.apology(req.Intent)
		}
		return c.withCTA(entity.Reply{Text: text, Intent: req.Intent, Route: entity.RouteFallback})
	}

	text, err := c.merge(ctx, questions, groups)
	if err == nil {
		return c.withCTA(entity.Reply{Text: text, Intent: req.Intent, Route: entity.RouteMerged, Matches: all})
	}
	c.logger.Warn("merge completion failed, answering independently", zap.String("user_id", req.UserID), zap.Error(err))
	return c.withCTA(entity.Reply{
		Text:    c.independent(groups),
		Intent:  req.Intent,
		Route:   entity.RouteIndependent,
		Matches: all,
	})
}

func (c *Composer) answerFollowUp(ctx context.Context, req ComposeRequest) (string, error) {
	msgs := []entity.ChatMessage{{
		Role:    entity.RoleSystem,
		Content: c.templates.Persona + "\n\n" + c.templates.FollowUpInstruction,
	}}
	for _, t := range req.History {
		msgs = append(msgs,
			entity.ChatMessage{Role: entity.RoleUser, Content: t.User},
			entity.ChatMessage{Role: entity.RoleAssistant, Content: t.Bot},
		)
	}
	msgs = append(msgs, entity.ChatMessage{Role: entity.RoleUser, Content: req.Question})

	text, err := c.generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if c.introducedBefore(req.History) {
		text = c.stripIntro(text)
	}
	if text == "" {
		return "", entity.ErrEmptyCompletion
	}
	return text, nil
}

func (c *Composer) answerUnconditioned(ctx context.Context, question string) (string, error) {
	return c.generate(ctx, []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: c.templates.Persona + "\n\n" + c.templates.UnconditionedInstruction},
		{Role: entity.RoleUser, Content: question},
	})
}

func (c *Composer) merge(ctx context.Context, questions []string, groups [][]entity.RetrievalMatch) (string, error) {
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "שאלה %d: %s\n", i+1, q)
		if len(groups[i]) == 0 {
			b.WriteString("(אין קטעים במאגר לשאלה זו)\n\n")
			continue
		}
		for _, m := range groups[i] {
			fmt.Fprintf(&b, "- ש: %s\n  ת: %s\n", m.Question, m.Answer)
		}
		b.WriteString("\n")
	}
	return c.generate(ctx, []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: c.templates.Persona + "\n\n" + c.templates.MergeInstruction},
		{Role: entity.RoleUser, Content: strings.TrimSpace(b.String())},
	})
}

// independent answers each sub-question from its best match. A single
// question gets its answer alone; several are enumerated.
func (c *Composer) independent(groups [][]entity.RetrievalMatch) string {
	answers := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			answers = append(answers, c.templates.Unanswered)
			continue
		}
		answers = append(answers, strings.TrimSpace(g[0].Answer))
	}
	if len(answers) == 1 {
		return answers[0]
	}
	var b strings.Builder
	for i, a := range answers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strconv.Itoa(i+1) + ". " + a)
	}
	return b.String()
}

func (c *Composer) generate(ctx context.Context, msgs []entity.ChatMessage) (string, error) {
	resp, err := c.provider.Generate(ctx, entity.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   c.gen.MaxTokens,
		Temperature: c.gen.Temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", entity.ErrEmptyCompletion
	}
	return text, nil
}

func (c *Composer) withCTA(r entity.Reply) entity.Reply {
	if r.Route == entity.RouteFollowUp {
		return r
	}
	if cta := c.templates.CTAFor(r.Intent); cta != "" {
		r.Text += "\n\n" + cta
	}
	return r
}

func (c *Composer) apology(i entity.Intent) entity.Reply {
	return entity.Reply{Text: c.templates.Apology, Intent: i, Route: entity.RouteApology}
}

func (c *Composer) introducedBefore(history []entity.ConversationTurn) bool {
	marker := textnorm.Normalize(c.templates.Intro)
	if marker == "" {
		return false
	}
	for _, t := range history {
		if strings.Contains(textnorm.Normalize(t.Bot), marker) {
			return true
		}
	}
	return false
}

var leadingSentence = regexp.MustCompile(`^[^.!?\n]*[.!?\n]+\s*`)

// stripIntro removes a leading sentence in which the agent introduces
// itself again.
func (c *Composer) stripIntro(text string) string {
	marker := textnorm.Normalize(c.templates.Intro)
	loc := leadingSentence.FindStringIndex(text)
	if loc == nil {
		return text
	}
	if !strings.Contains(textnorm.Normalize(text[:loc[1]]), marker) {
		return text
	}
	return strings.TrimSpace(text[loc[1]:])
}
