package entity

// KnowledgeMetadata travels with every indexed chunk. OriginalQuestion groups
// the chunks of one long source answer.
type KnowledgeMetadata struct {
	OriginalQuestion string `json:"originalQuestion"`
	ChunkIndex       int    `json:"chunkIndex"`
	TotalChunks      int    `json:"totalChunks"`
	Category         string `json:"category,omitempty"`
	Complexity       string `json:"complexity,omitempty"`
}

type KnowledgeEntry struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Embedding []float32         `json:"-"`
	Metadata  KnowledgeMetadata `json:"metadata"`
}

// Candidate is a raw nearest-neighbour row, ordered by ascending Distance.
type Candidate struct {
	Entry    KnowledgeEntry
	Distance float32
}

// RetrievalMatch is derived per query and never persisted.
// Score is cosine similarity: 1 - cosine distance.
type RetrievalMatch struct {
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Score    float32           `json:"score"`
	Metadata KnowledgeMetadata `json:"metadata"`
}

// GroupKey identifies the source answer a chunk was cut from.
func (m KnowledgeMetadata) GroupKey(fallback string) string {
	if m.OriginalQuestion != "" {
		return m.OriginalQuestion
	}
	return fallback
}
