package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketFresh(t *testing.T) {
	st := &MarketFeedState{Status: StatusReady, LastClosedCandleTime: 1000}

	assert.True(t, MarketFresh(st, 1000), "boundary equality counts as fresh")
	assert.True(t, MarketFresh(st, 999))
	assert.False(t, MarketFresh(st, 1001))
	assert.False(t, MarketFresh(nil, 0))

	for _, status := range []Status{StatusPending, StatusStale, StatusRefreshing, StatusError} {
		st := &MarketFeedState{Status: status, LastClosedCandleTime: 5000}
		assert.False(t, MarketFresh(st, 1000), "status %s is never fresh", status)
	}
}

func TestIndicatorFresh(t *testing.T) {
	st := &IndicatorFeedState{Status: StatusReady, LastComputedCandleTime: 1000}

	assert.True(t, IndicatorFresh(st, 1000))
	assert.False(t, IndicatorFresh(st, 1001))
	assert.False(t, IndicatorFresh(nil, 0))

	// A ready state that never computed anything is not fresh, even for a
	// zero requirement.
	never := &IndicatorFeedState{Status: StatusReady}
	assert.False(t, IndicatorFresh(never, 0))

	stale := &IndicatorFeedState{Status: StatusStale, LastComputedCandleTime: 5000}
	assert.False(t, IndicatorFresh(stale, 1000))
}
