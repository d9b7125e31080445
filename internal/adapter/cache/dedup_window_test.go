package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDedupWindow_RemembersWithinTTL(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	w := NewDedupWindow(10*time.Minute, 100, WithClock(clk.now))
	ctx := context.Background()

	seen, err := w.MarkSeen(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	clk.advance(9 * time.Minute)
	seen, _ = w.MarkSeen(ctx, "m1")
	assert.True(t, seen)

	clk.advance(time.Minute)
	seen, _ = w.MarkSeen(ctx, "m1")
	assert.False(t, seen, "expired ids are forgotten")
}

func TestDedupWindow_EvictsOldestWhenFull(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	w := NewDedupWindow(time.Hour, 2, WithClock(clk.now))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		clk.advance(time.Second)
		_, _ = w.MarkSeen(ctx, id)
	}
	assert.Equal(t, 2, w.Len())

	seen, _ := w.MarkSeen(ctx, "c")
	assert.True(t, seen)
	seen, _ = w.MarkSeen(ctx, "a")
	assert.False(t, seen, "a was evicted to make room for c")
}

func TestDedupWindow_ExpiryShrinksWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	w := NewDedupWindow(time.Minute, 10, WithClock(clk.now))
	ctx := context.Background()

	_, _ = w.MarkSeen(ctx, "a")
	_, _ = w.MarkSeen(ctx, "b")
	clk.advance(2 * time.Minute)
	_, _ = w.MarkSeen(ctx, "c")

	assert.Equal(t, 1, w.Len())
}
