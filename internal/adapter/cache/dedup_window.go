// Package cache holds process-local caches.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type seenEntry struct {
	id string
	at time.Time
}

// DedupWindow remembers message ids for ttl, holding at most capacity ids.
// Ids are evicted oldest first, on expiry or when the window is full.
type DedupWindow struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	order    *list.List // of seenEntry, oldest at the front
	index    map[string]*list.Element
}

type Option func(*DedupWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *DedupWindow) { w.now = now }
}

func NewDedupWindow(ttl time.Duration, capacity int, opts ...Option) *DedupWindow {
	if capacity <= 0 {
		capacity = 10_000
	}
	w := &DedupWindow{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *DedupWindow) MarkSeen(_ context.Context, messageID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evictExpired(now)
	if _, ok := w.index[messageID]; ok {
		return true, nil
	}
	for w.order.Len() >= w.capacity {
		w.remove(w.order.Front())
	}
	w.index[messageID] = w.order.PushBack(seenEntry{id: messageID, at: now})
	return false, nil
}

func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// evictExpired relies on insertion order matching timestamp order.
func (w *DedupWindow) evictExpired(now time.Time) {
	for e := w.order.Front(); e != nil; e = w.order.Front() {
		if now.Sub(e.Value.(seenEntry).at) < w.ttl {
			return
		}
		w.remove(e)
	}
}

func (w *DedupWindow) remove(e *list.Element) {
	delete(w.index, e.Value.(seenEntry).id)
	w.order.Remove(e)
}
