package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insurebot-core/internal/domain/entity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// undefinedTable is the SQLSTATE Postgres reports for a missing relation.
const undefinedTable = "42P01"

// NewPgPool opens and pings a connection pool.
func NewPgPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// PgVectorStore keeps the knowledge corpus in a pgvector table.
type PgVectorStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPgVectorStore(pool *pgxpool.Pool, table string) *PgVectorStore {
	return &PgVectorStore{pool: pool, table: table}
}

func (s *PgVectorStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, topK int) ([]entity.Candidate, error) {
	embedding := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx, searchSQL(s.ident()), &embedding, topK)
	if err != nil {
		return nil, s.wrap("search", err)
	}
	defer rows.Close()

	var out []entity.Candidate
	for rows.Next() {
		var (
			c        entity.Candidate
			distance float64
		)
		if err := rows.Scan(
			&c.Entry.ID, &c.Entry.Question, &c.Entry.Answer,
			&c.Entry.Metadata.OriginalQuestion, &c.Entry.Metadata.ChunkIndex, &c.Entry.Metadata.TotalChunks,
			&c.Entry.Metadata.Category, &c.Entry.Metadata.Complexity, &distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		c.Distance = float32(distance)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("search", err)
	}
	return out, nil
}

// EnsureCorpus creates the extension, table and cosine index.
func (s *PgVectorStore) EnsureCorpus(ctx context.Context, dim int, recreate bool) error {
	stmts := []string{`CREATE EXTENSION IF NOT EXISTS vector`}
	if recreate {
		stmts = append(stmts, `DROP TABLE IF EXISTS `+s.ident())
	}
	stmts = append(stmts, schemaSQL(s.table, dim)...)
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to prepare corpus table: %w", err)
		}
	}
	return nil
}

// Upsert writes entries in one batch, replacing rows with the same id.
func (s *PgVectorStore) Upsert(ctx context.Context, entries []entity.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	q := upsertSQL(s.ident())
	batch := &pgx.Batch{}
	for _, e := range entries {
		embedding := pgvector.NewVector(e.Embedding)
		batch.Queue(q,
			e.ID, e.Question, e.Answer, e.Metadata.GroupKey(e.Question),
			e.Metadata.ChunkIndex, e.Metadata.TotalChunks,
			nullable(e.Metadata.Category), nullable(e.Metadata.Complexity), &embedding,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, s.wrap("upsert", err))
		}
	}
	return nil
}

func (s *PgVectorStore) wrap(op string, err error) error {
	if isUndefinedTable(err) {
		return fmt.Errorf("table %s: %w", s.table, entity.ErrCorpusNotInitialized)
	}
	return fmt.Errorf("pgvector %s failed: %w", op, err)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func searchSQL(table string) string {
	return `SELECT id, question, answer, original_question, chunk_index, total_chunks,
		COALESCE(category, ''), COALESCE(complexity, ''), embedding <=> $1 AS distance
		FROM ` + table + `
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`
}

func upsertSQL(table string) string {
	return `INSERT INTO ` + table + ` (id, question, answer, original_question, chunk_index, total_chunks, category, complexity, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			answer = EXCLUDED.answer,
			original_question = EXCLUDED.original_question,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			category = EXCLUDED.category,
			complexity = EXCLUDED.complexity,
			embedding = EXCLUDED.embedding`
}

func schemaSQL(table string, dim int) []string {
	t := pgx.Identifier{table}.Sanitize()
	idx := pgx.Identifier{table + "_embedding_idx"}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			original_question TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 1,
			category TEXT,
			complexity TEXT,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, idx, t),
	}
}
