package ingest

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

// upsertChunkSize caps the rows per storage call; the storage layer
// enforces a hard per-call statement ceiling.
const upsertChunkSize = 50

// SampleStore is the storage write path the writer depends on.
type SampleStore interface {
	UpsertHourlyBatch(samples []database.HourlySample) error
}

// Writer converts validated hourly reports into idempotent, batched
// storage writes.
type Writer struct {
	store SampleStore
	log   zerolog.Logger
}

func NewWriter(store SampleStore, log zerolog.Logger) *Writer {
	return &Writer{store: store, log: log}
}

// WriteHourly normalizes and upserts the reports for one sensor. Malformed
// records are dropped with a logged reason and do not abort the batch. A
// chunk failure aborts the remaining chunks; upserts already committed
// stand. Returns the count of records actually written.
func (w *Writer) WriteHourly(segmentID int64, reports []telraam.HourlyReport) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}

	samples := make([]database.HourlySample, 0, len(reports))
	for _, report := range reports {
		sample, err := Normalize(segmentID, report)
		if err != nil {
			var drop *DropError
			if errors.As(err, &drop) {
				w.log.Warn().
					Int64("segment_id", segmentID).
					Str("reason", drop.Reason).
					Msg("skipping record")
				continue
			}
			return 0, err
		}
		samples = append(samples, sample)
	}

	written := 0
	for start := 0; start < len(samples); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]

		if err := w.store.UpsertHourlyBatch(chunk); err != nil {
			return written, fmt.Errorf("failed to write chunk at offset %d for sensor %d: %w",
				start, segmentID, err)
		}
		written += len(chunk)
	}

	return written, nil
}
