// Package ingest loads the Q&A corpus into the vector store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/repository"
	"insurebot-core/internal/domain/textnorm"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Record is one question/answer pair of the corpus file.
type Record struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Category   string    `json:"category,omitempty"`
	Complexity string    `json:"complexity,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

type Options struct {
	Recreate bool
	// UsePrecomputed keeps a record's embedding when the answer fits in one
	// chunk and the vector has the corpus dimension.
	UsePrecomputed bool
	ChunkRunes     int
	BatchSize      int
	Concurrency    int
}

type Stats struct {
	Records int
	Skipped int
	Entries int
}

type Ingestor struct {
	embedder repository.Embedder
	writer   repository.KnowledgeWriter
	dim      int
	logger   *zap.Logger
}

func NewIngestor(emb repository.Embedder, w repository.KnowledgeWriter, dim int, logger *zap.Logger) *Ingestor {
	return &Ingestor{embedder: emb, writer: w, dim: dim, logger: logger.Named("ingest")}
}

// entryNamespace keeps entry ids stable across runs so re-ingesting
// overwrites rather than duplicates.
var entryNamespace = uuid.MustParse("0d6f1f0e-9a7b-4d4c-8f43-6a1f2c9b7d10")

func ReadCorpus(r io.Reader) ([]Record, error) {
	var recs []Record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("failed to decode corpus: %w", err)
	}
	return recs, nil
}

// Run embeds and writes every record of the corpus.
func (in *Ingestor) Run(ctx context.Context, records []Record, opts Options) (Stats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if err := in.writer.EnsureCorpus(ctx, in.dim, opts.Recreate); err != nil {
		return Stats{}, err
	}

	stats := Stats{Records: len(records)}
	entries := in.expand(records, opts, &stats)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range entries {
		if entries[i].Embedding != nil {
			continue
		}
		g.Go(func() error {
			e := &entries[i]
			v, err := in.embedder.CreateEmbedding(gctx, textnorm.Normalize(e.Question+" "+e.Answer))
			if err != nil {
				return fmt.Errorf("embed %q chunk %d: %w", e.Metadata.OriginalQuestion, e.Metadata.ChunkIndex, err)
			}
			if in.dim > 0 && len(v) != in.dim {
				return fmt.Errorf("%w: got %d dimensions, want %d", entity.ErrMalformedEmbedding, len(v), in.dim)
			}
			e.Embedding = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for start := 0; start < len(entries); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(entries))
		if err := in.writer.Upsert(ctx, entries[start:end]); err != nil {
			return stats, fmt.Errorf("write batch at %d: %w", start, err)
		}
		stats.Entries += end - start
		in.logger.Info("batch written", zap.Int("entries", stats.Entries), zap.Int("total", len(entries)))
	}
	return stats, nil
}

func (in *Ingestor) expand(records []Record, opts Options, stats *Stats) []entity.KnowledgeEntry {
	var entries []entity.KnowledgeEntry
	for i, r := range records {
		q, a := strings.TrimSpace(r.Question), strings.TrimSpace(r.Answer)
		if q == "" || a == "" {
			in.logger.Warn("skipping incomplete record", zap.Int("index", i))
			stats.Skipped++
			continue
		}
		chunks := Chunk(a, opts.ChunkRunes)
		for ci, c := range chunks {
			e := entity.KnowledgeEntry{
				ID:       uuid.NewSHA1(entryNamespace, fmt.Appendf(nil, "%s#%d", q, ci)).String(),
				Question: q,
				Answer:   c,
				Metadata: entity.KnowledgeMetadata{
					OriginalQuestion: q,
					ChunkIndex:       ci,
					TotalChunks:      len(chunks),
					Category:         r.Category,
					Complexity:       r.Complexity,
				},
			}
			if opts.UsePrecomputed && len(chunks) == 1 && len(r.Embedding) > 0 && (in.dim <= 0 || len(r.Embedding) == in.dim) {
				e.Embedding = r.Embedding
			}
			entries = append(entries, e)
		}
	}
	return entries
}
