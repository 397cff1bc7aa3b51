package cursor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAdvanceIsStrictlyMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	advanced, err := s.Advance(ctx, "bot-1", "15m", 1000, 1)
	require.NoError(t, err)
	assert.True(t, advanced)

	// Equal value loses: strictly greater is required.
	advanced, err = s.Advance(ctx, "bot-1", "15m", 1000, 2)
	require.NoError(t, err)
	assert.False(t, advanced)

	advanced, err = s.Advance(ctx, "bot-1", "15m", 900, 3)
	require.NoError(t, err)
	assert.False(t, advanced)

	advanced, err = s.Advance(ctx, "bot-1", "15m", 2000, 4)
	require.NoError(t, err)
	assert.True(t, advanced)

	c, found, err := s.Get(ctx, "bot-1", "15m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2000), c.LastProcessedCandleCloseMs)
	assert.Equal(t, int64(4), c.UpdatedAtMs)
}

func TestMemoryStoreCursorsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Advance(ctx, "bot-1", "15m", 1000, 1)
	require.NoError(t, err)
	_, err = s.Advance(ctx, "bot-1", "1h", 500, 1)
	require.NoError(t, err)
	_, err = s.Advance(ctx, "bot-2", "15m", 700, 1)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, found, err := s.Get(ctx, "bot-3", "15m")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreConcurrentAdvance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const n = 100
	var wg sync.WaitGroup
	wins := make(chan int64, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(closeMs int64) {
			defer wg.Done()
			ok, err := s.Advance(ctx, "bot-1", "15m", closeMs, closeMs)
			require.NoError(t, err)
			if ok {
				wins <- closeMs
			}
		}(int64(i))
	}
	wg.Wait()
	close(wins)

	c, found, err := s.Get(ctx, "bot-1", "15m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(n), c.LastProcessedCandleCloseMs, "highest value must win")

	var sawMax bool
	for w := range wins {
		if w == n {
			sawMax = true
		}
	}
	assert.True(t, sawMax, "the maximum close time must have advanced at some point")
}
