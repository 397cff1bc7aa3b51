package executor

import "context"

// Run statuses.
const (
	RunOK     = "ok"
	RunNoop   = "noop"
	RunFailed = "failed"
)

// RunRecord is the persisted outcome of one execution attempt, successful or
// not. Failed runs are the operator-visible surface for execution errors.
type RunRecord struct {
	ID               string `json:"id"`
	BotID            string `json:"bot_id"`
	Symbol           string `json:"symbol"`
	Timeframe        string `json:"timeframe"`
	ClosedCandleTime int64  `json:"closed_candle_time"`
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	StartedAtMs      int64  `json:"started_at_ms"`
	FinishedAtMs     int64  `json:"finished_at_ms"`
}

// RunRecorder persists run records. Implementations live in internal/store.
type RunRecorder interface {
	Record(ctx context.Context, rec RunRecord) error
}
