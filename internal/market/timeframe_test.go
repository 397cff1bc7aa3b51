package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 1H ", time.Hour, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"15s", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := FrameDuration(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestRequiredClosedTime(t *testing.T) {
	const frame = int64(15 * 60 * 1000)

	// 12:07:30 with no epsilon: the 11:45-12:00 bar is the last closed one.
	now := int64(1_700_000_000_000)
	aligned := now / frame * frame
	mid := aligned + frame/2
	assert.Equal(t, aligned-1, RequiredClosedTime(mid, 0, frame))

	// Exactly on the boundary the bar ending there counts as closed.
	assert.Equal(t, aligned-1, RequiredClosedTime(aligned, 0, frame))

	// Epsilon pushes a near-boundary instant over the line.
	justBefore := aligned + frame - 1000
	assert.Equal(t, aligned-1, RequiredClosedTime(justBefore, 0, frame))
	assert.Equal(t, aligned+frame-1, RequiredClosedTime(justBefore, 2000, frame))

	assert.Equal(t, int64(0), RequiredClosedTime(mid, 0, 0))
}

func TestRequiredClosedTimeMatchesCandleCloseTime(t *testing.T) {
	// Binance close_time is end-exclusive boundary minus one, so a candle is
	// "the current one" when its CloseTime equals the required value.
	frame, ok := FrameMillis("1h")
	assert.True(t, ok)
	openTime := int64(1_700_000_000_000) / frame * frame
	closeTime := openTime + frame - 1
	assert.Equal(t, closeTime, RequiredClosedTime(openTime+frame, 0, frame))
}
