package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/feed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "tidemark.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkMarketRefreshingClaimAndLease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := feed.MarketKey{ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"}

	now := int64(1_700_000_000_000)
	_, ok, err := s.MarkMarketRefreshing(ctx, key, now)
	require.NoError(t, err)
	assert.True(t, ok, "first claim wins")

	_, ok, err = s.MarkMarketRefreshing(ctx, key, now+1000)
	require.NoError(t, err)
	assert.False(t, ok, "live claim is held")

	_, ok, err = s.MarkMarketRefreshing(ctx, key, now+feed.RefreshLeaseMs+1)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim is reclaimable")
}

func TestRestartResetsRefreshingStates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tidemark.db")
	key := feed.MarketKey{ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"}

	s, err := New(path)
	require.NoError(t, err)
	_, ok, err := s.MarkMarketRefreshing(ctx, key, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Close())

	// The claim holder is gone; a fresh process must see the feed as stale.
	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	st, err := reopened.GetMarket(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, feed.StatusStale, st.Status)

	_, ok, err = reopened.MarkMarketRefreshing(ctx, key, 2)
	require.NoError(t, err)
	assert.True(t, ok, "the feed is claimable again after restart")
}

func TestCursorAdvanceIsConditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.Advance(ctx, "bot-1", "15m", 1000, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Advance(ctx, "bot-1", "15m", 1000, 2)
	require.NoError(t, err)
	assert.False(t, ok, "equal value loses")

	ok, err = s.Advance(ctx, "bot-1", "15m", 2000, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	cur, found, err := s.Get(ctx, "bot-1", "15m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2000), cur.LastProcessedCandleCloseMs)
}
