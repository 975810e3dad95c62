package queue

import (
	"encoding/json"
	"time"
)

// RunSummary is the wire format for the per-run accounting published after
// every sync, backfill and rollup pass.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Job             string    `json:"job"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	SensorsUpdated  int       `json:"sensors_updated"`
	SensorsSkipped  int       `json:"sensors_skipped"`
	SensorsErrored  int       `json:"sensors_errored"`
	RowsWritten     int       `json:"rows_written"`
	RowsPruned      int64     `json:"rows_pruned"`
	Error           string    `json:"error,omitempty"`
}

// Failed reports whether the run should be surfaced to operators.
func (s *RunSummary) Failed() bool {
	return s.SensorsErrored > 0 || s.Error != ""
}

// ParseRunSummary decodes a run summary message payload.
func ParseRunSummary(data []byte) (*RunSummary, error) {
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
