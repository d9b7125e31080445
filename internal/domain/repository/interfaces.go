package repository

import (
	"context"

	"insurebot-core/internal/domain/entity"
)

// VectorStore returns the topK nearest knowledge rows by cosine distance.
// A store whose table or collection does not exist yet returns
// entity.ErrCorpusNotInitialized.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int) ([]entity.Candidate, error)
}

// KnowledgeWriter is the ingestion side of a vector store.
type KnowledgeWriter interface {
	EnsureCorpus(ctx context.Context, dim int, recreate bool) error
	Upsert(ctx context.Context, entries []entity.KnowledgeEntry) error
}

type AIProvider interface {
	Generate(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ConversationMemory is the durable per-user store. AppendExchange never
// reorders or mutates earlier turns; UpdateProfile only writes the fields
// present in the patch.
type ConversationMemory interface {
	GetHistory(ctx context.Context, userID string, maxTurns int) ([]entity.ConversationTurn, error)
	AppendExchange(ctx context.Context, userID, userText, botText string, meta map[string]string) error
	GetProfile(ctx context.Context, userID string) (entity.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, patch entity.ProfilePatch) error
	Erase(ctx context.Context, userID string) error
}

// MessageDeduper reports whether a message id was already seen, marking it
// as seen otherwise.
type MessageDeduper interface {
	MarkSeen(ctx context.Context, messageID string) (alreadySeen bool, err error)
}

type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, text string) entity.ProfilePatch
}

type Sender interface {
	Send(ctx context.Context, userID, text string) entity.SendResult
}
