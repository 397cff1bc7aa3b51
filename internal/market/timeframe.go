package market

import (
	"strconv"
	"strings"
	"time"
)

// FrameDuration parses "15m", "1h", "4h", "1d", "1w" into time.Duration.
// Returns (0, false) on invalid input.
func FrameDuration(timeframe string) (time.Duration, bool) {
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		return 0, false
	}
	unit := timeframe[len(timeframe)-1]
	numStr := strings.TrimSpace(timeframe[:len(timeframe)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// FrameMillis is FrameDuration in epoch milliseconds.
func FrameMillis(timeframe string) (int64, bool) {
	d, ok := FrameDuration(timeframe)
	if !ok {
		return 0, false
	}
	return d.Milliseconds(), true
}

// RequiredClosedTime returns the end-exclusive boundary of the most recently
// closed bar at nowMs+epsilonMs for the given frame size. The dispatcher and
// the execution worker must use this exact formula so both agree on which
// candle is "current".
func RequiredClosedTime(nowMs, epsilonMs, frameMs int64) int64 {
	if frameMs <= 0 {
		return 0
	}
	at := nowMs + epsilonMs
	return at/frameMs*frameMs - 1
}
