package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/domain/textnorm"
	"insurebot-core/internal/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// minConfident is how many matches must clear MinScore before the
// threshold is relaxed.
const minConfident = 2

type LookupOptions struct {
	TopK     int
	MinScore float32
	Profile  *entity.UserProfile
}

type RetrievalConfig struct {
	TopK          int
	MinScore      float32
	RelaxFactor   float32
	DedupJaccard  float64
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	Dim           int
	Concurrency   int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:          8,
		MinScore:      0.60,
		RelaxFactor:   0.9,
		DedupJaccard:  0.9,
		EmbedTimeout:  5 * time.Second,
		SearchTimeout: 5 * time.Second,
		Dim:           1536,
		Concurrency:   4,
	}
}

// RetrievalEngine turns a question into a ranked, de-duplicated set of
// knowledge matches.
type RetrievalEngine struct {
	embedder repository.Embedder
	store    repository.VectorStore
	cfg      RetrievalConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewRetrievalEngine(emb repository.Embedder, vs repository.VectorStore, cfg RetrievalConfig, logger *zap.Logger, metrics *observability.Metrics) *RetrievalEngine {
	def := DefaultRetrievalConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.RelaxFactor <= 0 {
		cfg.RelaxFactor = def.RelaxFactor
	}
	if cfg.DedupJaccard <= 0 {
		cfg.DedupJaccard = def.DedupJaccard
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = def.EmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &RetrievalEngine{
		embedder: emb,
		store:    vs,
		cfg:      cfg,
		logger:   logger.Named("retrieval"),
		metrics:  metrics,
	}
}

// Options returns the engine defaults for a lookup on behalf of profile.
func (e *RetrievalEngine) Options(profile *entity.UserProfile) LookupOptions {
	return LookupOptions{TopK: e.cfg.TopK, MinScore: e.cfg.MinScore, Profile: profile}
}

// Lookup returns matches ordered by descending score. An uninitialized
// corpus yields no matches and no error; upstream failures are returned
// wrapped in entity.ErrUpstreamUnavailable or entity.ErrMalformedEmbedding.
func (e *RetrievalEngine) Lookup(ctx context.Context, question string, opts LookupOptions) ([]entity.RetrievalMatch, error) {
	query := textnorm.Normalize(question)
	if query == "" {
		e.count(observability.OutcomeNoMatch)
		return nil, nil
	}
	if opts.TopK <= 0 {
		opts.TopK = e.cfg.TopK
	}
	if opts.MinScore < 0 {
		opts.MinScore = 0
	}
	query += profileSuffix(opts.Profile)

	started := time.Now()
	vector, err := e.embed(ctx, query)
	if err != nil {
		e.count(observability.OutcomeUpstreamError)
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	candidates, err := e.store.Search(searchCtx, vector, opts.TopK)
	cancel()
	if e.metrics != nil {
		e.metrics.RetrievalLatency.Observe(time.Since(started).Seconds())
	}
	if errors.Is(err, entity.ErrCorpusNotInitialized) {
		e.logger.Warn("knowledge corpus not initialized", zap.String("outcome", observability.OutcomeUninitialized))
		e.count(observability.OutcomeUninitialized)
		return []entity.RetrievalMatch{}, nil
	}
	if err != nil {
		e.count(observability.OutcomeUpstreamError)
		return nil, fmt.Errorf("%w: vector search: %v", entity.ErrUpstreamUnavailable, err)
	}

	matches := e.rank(candidates, opts.MinScore)
	if len(matches) == 0 {
		e.count(observability.OutcomeNoMatch)
	} else {
		e.count(observability.OutcomeMatched)
	}
	e.logger.Debug("lookup finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
		zap.Duration("took", time.Since(started)),
	)
	return matches, nil
}

// LookupAll retrieves every sub-question concurrently. Group i belongs to
// question i; a failed lookup leaves its group empty.
func (e *RetrievalEngine) LookupAll(ctx context.Context, questions []string, opts LookupOptions) [][]entity.RetrievalMatch {
	groups := make([][]entity.RetrievalMatch, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, q := range questions {
		g.Go(func() error {
			matches, err := e.Lookup(gctx, q, opts)
			if err != nil {
				e.logger.Warn("sub-question lookup failed", zap.Int("index", i), zap.Error(err))
				return nil
			}
			groups[i] = matches
			return nil
		})
	}
	_ = g.Wait()
	return groups
}

func (e *RetrievalEngine) embed(ctx context.Context, query string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vector, err := e.embedder.CreateEmbedding(embedCtx, query)
	if err != nil {
		if errors.Is(err, entity.ErrMalformedEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embedding: %v", entity.ErrUpstreamUnavailable, err)
	}
	if err := validateVector(vector, e.cfg.Dim); err != nil {
		return nil, err
	}
	return vector, nil
}

func validateVector(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", entity.ErrMalformedEmbedding)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", entity.ErrMalformedEmbedding, len(v), dim)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: non-finite component", entity.ErrMalformedEmbedding)
		}
	}
	return nil
}

// rank collapses chunks, applies the score threshold and drops
// near-duplicate answers.
func (e *RetrievalEngine) rank(candidates []entity.Candidate, minScore float32) []entity.RetrievalMatch {
	collapsed := collapseChunks(candidates)

	kept := filterScore(collapsed, minScore)
	if len(kept) < minConfident {
		kept = filterScore(collapsed, minScore*e.cfg.RelaxFactor)
	}
	return dedupAnswers(kept, e.cfg.DedupJaccard)
}

// collapseChunks keeps one match per source answer: the best scoring chunk,
// or the lower chunk index on a tie. Output is sorted by descending score.
func collapseChunks(candidates []entity.Candidate) []entity.RetrievalMatch {
	best := make(map[string]entity.RetrievalMatch, len(candidates))
	var order []string
	for _, c := range candidates {
		m := entity.RetrievalMatch{
			Question: c.Entry.Question,
			Answer:   c.Entry.Answer,
			Score:    similarity(c.Distance),
			Metadata: c.Entry.Metadata,
		}
		key := textnorm.Normalize(c.Entry.Metadata.GroupKey(c.Entry.Question))
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = m
			continue
		}
		if m.Score > cur.Score || (m.Score == cur.Score && m.Metadata.ChunkIndex < cur.Metadata.ChunkIndex) {
			best[key] = m
		}
	}
	out := make([]entity.RetrievalMatch, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func similarity(distance float32) float32 {
	s := 1 - distance
	if math.IsNaN(float64(s)) {
		return 0
	}
	return max(0, min(1, s))
}

func filterScore(matches []entity.RetrievalMatch, threshold float32) []entity.RetrievalMatch {
	var out []entity.RetrievalMatch
	for _, m := range matches {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// dedupAnswers walks matches best-first and drops any whose answer overlaps
// an already kept answer by more than threshold.
func dedupAnswers(matches []entity.RetrievalMatch, threshold float64) []entity.RetrievalMatch {
	out := make([]entity.RetrievalMatch, 0, len(matches))
	var keptTokens [][]string
	for _, m := range matches {
		tokens := textnorm.Tokens(m.Answer)
		dup := false
		for _, k := range keptTokens {
			if textnorm.Jaccard(tokens, k) > threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		keptTokens = append(keptTokens, tokens)
		out = append(out, m)
	}
	return out
}

func profileSuffix(p *entity.UserProfile) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.FirstName != "" {
		parts = append(parts, textnorm.Normalize(p.FirstName))
	}
	if p.City != "" {
		parts = append(parts, textnorm.Normalize(p.City))
	}
	if p.HomeValue > 0 {
		parts = append(parts, strconv.FormatInt(p.HomeValue, 10))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func (e *RetrievalEngine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.RetrievalOutcomes.WithLabelValues(outcome).Inc()
	}
}
