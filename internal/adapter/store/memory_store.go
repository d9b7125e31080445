package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"insurebot-core/internal/domain/entity"
)

// InMemoryMemory is a process-local ConversationMemory for development and
// tests. History is capped at retain turns per user.
type InMemoryMemory struct {
	mu       sync.Mutex
	history  map[string][]entity.ConversationTurn
	profiles map[string]entity.UserProfile
	retain   int
	now      func() time.Time
}

func NewInMemoryMemory(retain int) *InMemoryMemory {
	if retain <= 0 {
		retain = 200
	}
	return &InMemoryMemory{
		history:  make(map[string][]entity.ConversationTurn),
		profiles: make(map[string]entity.UserProfile),
		retain:   retain,
		now:      time.Now,
	}
}

func (m *InMemoryMemory) GetHistory(_ context.Context, userID string, maxTurns int) ([]entity.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.history[userID]
	if maxTurns > 0 && len(h) > maxTurns {
		h = h[len(h)-maxTurns:]
	}
	out := make([]entity.ConversationTurn, len(h))
	for i, t := range h {
		t.Meta = maps.Clone(t.Meta)
		out[i] = t
	}
	return out, nil
}

func (m *InMemoryMemory) AppendExchange(_ context.Context, userID, userText, botText string, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id := meta[entity.MetaMessageID]; id != "" {
		for _, t := range m.history[userID] {
			if t.Meta[entity.MetaMessageID] == id {
				return nil
			}
		}
	}
	h := append(m.history[userID], entity.ConversationTurn{
		User:      userText,
		Bot:       botText,
		Timestamp: m.now(),
		Meta:      maps.Clone(meta),
	})
	if len(h) > m.retain {
		h = append([]entity.ConversationTurn(nil), h[len(h)-m.retain:]...)
	}
	m.history[userID] = h
	return nil
}

func (m *InMemoryMemory) GetProfile(_ context.Context, userID string) (entity.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return entity.NewProfile(userID), nil
}

func (m *InMemoryMemory) UpdateProfile(_ context.Context, userID string, patch entity.ProfilePatch) error {
	if patch.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		p = entity.NewProfile(userID)
	}
	p = patch.Apply(p)
	p.UpdatedAt = m.now()
	m.profiles[userID] = p
	return nil
}

func (m *InMemoryMemory) Erase(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.history, userID)
	delete(m.profiles, userID)
	return nil
}
