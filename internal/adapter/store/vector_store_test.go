package store

import (
	"fmt"
	"testing"

	"insurebot-core/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestQdrantPayload_RoundTrip(t *testing.T) {
	e := entity.KnowledgeEntry{
		ID:       "faq-12#1",
		Question: "מה מכסה ביטוח מבנה?",
		Answer:   "קירות, רצפה וצנרת.",
		Metadata: entity.KnowledgeMetadata{
			OriginalQuestion: "מה מכסה ביטוח מבנה?",
			ChunkIndex:       1,
			TotalChunks:      3,
			Category:         "מבנה",
		},
	}

	got := entryFromPayload(qdrant.NewValueMap(entryPayload(e)))

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Answer, got.Answer)
	assert.Equal(t, e.Metadata, got.Metadata)
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	derived := pointID("faq-12#1")
	_, err := uuid.Parse(derived)
	assert.NoError(t, err)
	assert.Equal(t, derived, pointID("faq-12#1"))
	assert.NotEqual(t, derived, pointID("faq-12#2"))
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, isUndefinedTable(fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"})))
	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUndefinedTable(fmt.Errorf("boom")))

	s := &PgVectorStore{table: "kb"}
	assert.ErrorIs(t, s.wrap("search", &pgconn.PgError{Code: "42P01"}), entity.ErrCorpusNotInitialized)
	assert.NotErrorIs(t, s.wrap("search", fmt.Errorf("conn reset")), entity.ErrCorpusNotInitialized)
}

func TestPgSQL_UsesCosineDistanceAndQuotedTable(t *testing.T) {
	q := searchSQL(`"insurance_knowledge"`)
	assert.Contains(t, q, `embedding <=> $1`)
	assert.Contains(t, q, `FROM "insurance_knowledge"`)

	schema := schemaSQL("insurance_knowledge", 1536)
	assert.Contains(t, schema[0], "vector(1536)")
	assert.Contains(t, schema[1], "vector_cosine_ops")
	assert.Contains(t, upsertSQL(`"kb"`), "ON CONFLICT (id)")
}
