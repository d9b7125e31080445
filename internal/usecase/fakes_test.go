package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"insurebot-core/internal/adapter/store"
	"insurebot-core/internal/domain/entity"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) ([]float32, error)
	texts []string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.fn(text)
}

func constEmbedder(v ...float32) *fakeEmbedder {
	return &fakeEmbedder{fn: func(string) ([]float32, error) { return v, nil }}
}

type fakeVectorStore struct {
	fn       func(vector []float32) ([]entity.Candidate, error)
	lastTopK atomic.Int32
}

func (f *fakeVectorStore) Search(_ context.Context, vector []float32, topK int) ([]entity.Candidate, error) {
	f.lastTopK.Store(int32(topK))
	return f.fn(vector)
}

func staticStore(c ...entity.Candidate) *fakeVectorStore {
	return &fakeVectorStore{fn: func([]float32) ([]entity.Candidate, error) { return c, nil }}
}

func candidate(group, question, answer string, chunk int, distance float32) entity.Candidate {
	return entity.Candidate{
		Entry: entity.KnowledgeEntry{
			ID:       question,
			Question: question,
			Answer:   answer,
			Metadata: entity.KnowledgeMetadata{OriginalQuestion: group, ChunkIndex: chunk, TotalChunks: chunk + 1},
		},
		Distance: distance,
	}
}

// fakeProvider records every request and answers through fn.
type fakeProvider struct {
	mu       sync.Mutex
	requests []entity.CompletionRequest
	fn       func(req entity.CompletionRequest) (*entity.AIResponse, error)
}

func (f *fakeProvider) Generate(_ context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func replying(text string) *fakeProvider {
	return &fakeProvider{fn: func(entity.CompletionRequest) (*entity.AIResponse, error) {
		return &entity.AIResponse{Content: text}, nil
	}}
}

func failing(err error) *fakeProvider {
	return &fakeProvider{fn: func(entity.CompletionRequest) (*entity.AIResponse, error) {
		return nil, err
	}}
}

// echoing answers with the last user message, so retrieved content shows up
// in the reply.
func echoing() *fakeProvider {
	return &fakeProvider{fn: func(req entity.CompletionRequest) (*entity.AIResponse, error) {
		return &entity.AIResponse{Content: req.Messages[len(req.Messages)-1].Content}, nil
	}}
}

// countingRetriever serves canned groups keyed by sub-question.
type countingRetriever struct {
	groups map[string][]entity.RetrievalMatch
	calls  atomic.Int32
	panics bool
}

func (r *countingRetriever) LookupAll(_ context.Context, questions []string, _ LookupOptions) [][]entity.RetrievalMatch {
	r.calls.Add(1)
	if r.panics {
		panic("retriever exploded")
	}
	out := make([][]entity.RetrievalMatch, len(questions))
	for i, q := range questions {
		out[i] = r.groups[q]
	}
	return out
}

func (r *countingRetriever) Options(p *entity.UserProfile) LookupOptions {
	return LookupOptions{TopK: 8, MinScore: 0.6, Profile: p}
}

// flakyMemory wraps the in-memory store and fails chosen operations.
type flakyMemory struct {
	*store.InMemoryMemory
	failErase   bool
	failAppend  bool
	lostReplies atomic.Int32 // appends that commit but report an error
	eraseCalls  atomic.Int32
	appendCalls atomic.Int32
}

var errStoreDown = errors.New("store down")

func (m *flakyMemory) Erase(ctx context.Context, userID string) error {
	m.eraseCalls.Add(1)
	if m.failErase {
		return errStoreDown
	}
	return m.InMemoryMemory.Erase(ctx, userID)
}

func (m *flakyMemory) AppendExchange(ctx context.Context, userID, userText, botText string, meta map[string]string) error {
	m.appendCalls.Add(1)
	if m.failAppend {
		return errStoreDown
	}
	if err := m.InMemoryMemory.AppendExchange(ctx, userID, userText, botText, meta); err != nil {
		return err
	}
	if m.lostReplies.Load() > 0 {
		m.lostReplies.Add(-1)
		return context.DeadlineExceeded
	}
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
	err  error
}

func (d *fakeDeduper) MarkSeen(_ context.Context, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return true, nil
	}
	d.seen[id] = true
	return false, nil
}

type fakeExtractor struct {
	patch entity.ProfilePatch
	calls atomic.Int32
}

func (e *fakeExtractor) ExtractProfile(context.Context, string) entity.ProfilePatch {
	e.calls.Add(1)
	return e.patch
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, _ string, text string) entity.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return entity.SendResult{Success: true, ID: "out-1"}
}
