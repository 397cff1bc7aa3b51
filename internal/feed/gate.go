package feed

// MarketFresh reports whether a market feed covers at least the required
// closed-candle boundary. A boundary exactly equal to the requirement counts
// as fresh.
func MarketFresh(st *MarketFeedState, requiredClosedTime int64) bool {
	if st == nil {
		return false
	}
	return st.Status == StatusReady && st.LastClosedCandleTime >= requiredClosedTime
}

// IndicatorFresh reports whether an indicator feed has been computed at least
// up to the required closed-candle boundary.
func IndicatorFresh(st *IndicatorFeedState, requiredClosedTime int64) bool {
	if st == nil {
		return false
	}
	if st.Status != StatusReady {
		return false
	}
	return st.LastComputedCandleTime != 0 && st.LastComputedCandleTime >= requiredClosedTime
}
