package store

import (
	"context"
	"fmt"

	"insurebot-core/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Payload keys of an indexed knowledge chunk.
const (
	payloadQuestion         = "question"
	payloadAnswer           = "answer"
	payloadOriginalQuestion = "original_question"
	payloadChunkIndex       = "chunk_index"
	payloadTotalChunks      = "total_chunks"
	payloadCategory         = "category"
	payloadComplexity       = "complexity"
	payloadEntryID          = "entry_id"
)

// entryNamespace derives stable point ids from entry ids that are not UUIDs.
var entryNamespace = uuid.MustParse("5b0e3c8e-6f59-4b8e-9a5e-2f4a3c1d7e90")

type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	logger         *zap.Logger
}

func NewQdrantStore(client *qdrant.Client, collectionName string, logger *zap.Logger) *QdrantStore {
	return &QdrantStore{
		client:         client,
		collectionName: collectionName,
		logger:         logger.Named("qdrant"),
	}
}

// EnsureCorpus creates the collection when missing, dropping it first when
// recreate is set.
func (s *QdrantStore) EnsureCorpus(ctx context.Context, dim int, recreate bool) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists && recreate {
		if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		exists = false
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	// keyword index so the corpus can be browsed per category
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collectionName,
		FieldName:      payloadCategory,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		s.logger.Warn("could not create category index (might already exist)", zap.Error(err))
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]entity.Candidate, error) {
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil, fmt.Errorf("collection %q: %w", s.collectionName, entity.ErrCorpusNotInitialized)
		}
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	out := make([]entity.Candidate, 0, len(res))
	for _, hit := range res {
		out = append(out, entity.Candidate{
			Entry: entryFromPayload(hit.Payload),
			// cosine collections report similarity; distance is its complement
			Distance: 1 - hit.Score,
		})
	}
	return out, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, entries []entity.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(entryPayload(e)),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func pointID(entryID string) string {
	if id, err := uuid.Parse(entryID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(entryNamespace, []byte(entryID)).String()
}

func entryPayload(e entity.KnowledgeEntry) map[string]any {
	p := map[string]any{
		payloadEntryID:          e.ID,
		payloadQuestion:         e.Question,
		payloadAnswer:           e.Answer,
		payloadOriginalQuestion: e.Metadata.GroupKey(e.Question),
		payloadChunkIndex:       int64(e.Metadata.ChunkIndex),
		payloadTotalChunks:      int64(e.Metadata.TotalChunks),
	}
	if e.Metadata.Category != "" {
		p[payloadCategory] = e.Metadata.Category
	}
	if e.Metadata.Complexity != "" {
		p[payloadComplexity] = e.Metadata.Complexity
	}
	return p
}

func entryFromPayload(p map[string]*qdrant.Value) entity.KnowledgeEntry {
	str := func(k string) string { return p[k].GetStringValue() }
	return entity.KnowledgeEntry{
		ID:       str(payloadEntryID),
		Question: str(payloadQuestion),
		Answer:   str(payloadAnswer),
		Metadata: entity.KnowledgeMetadata{
			OriginalQuestion: str(payloadOriginalQuestion),
			ChunkIndex:       int(p[payloadChunkIndex].GetIntegerValue()),
			TotalChunks:      int(p[payloadTotalChunks].GetIntegerValue()),
			Category:         str(payloadCategory),
			Complexity:       str(payloadComplexity),
		},
	}
}
