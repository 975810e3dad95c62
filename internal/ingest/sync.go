package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

// SensorStore provides the stored-data reads the sync engine derives its
// work from. All sync state lives in the data itself; there is no cursor.
type SensorStore interface {
	ActiveSensors() ([]database.SensorLocation, error)
	LatestHour(segmentID int64) (*time.Time, error)
}

// ReportFetcher fetches validated per-hour reports for one segment.
type ReportFetcher interface {
	FetchHourly(ctx context.Context, segmentID int64, start, end time.Time) ([]telraam.HourlyReport, error)
}

// HourlyWriter persists reports idempotently and returns the written count.
type HourlyWriter interface {
	WriteHourly(segmentID int64, reports []telraam.HourlyReport) (int, error)
}

// Pruner removes aged hourly rows; the engine invokes it at the end of a
// run.
type Pruner interface {
	Run() (int64, error)
}

// Summary is the per-run accounting reported to operators: logged, and
// published for the notification consumer.
type Summary struct {
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

// Engine drives forward watermark sync: for each active sensor it fetches
// the window from the hour after the stored watermark up to "now minus one
// hour" and upserts the result. Sensors are processed strictly
// sequentially with a fixed delay between upstream calls because the
// upstream rate limit is shared across all sensors.
type Engine struct {
	store     SensorStore
	fetcher   ReportFetcher
	writer    HourlyWriter
	pruner    Pruner
	callDelay time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewEngine(store SensorStore, fetcher ReportFetcher, writer HourlyWriter, pruner Pruner, callDelay time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		fetcher:   fetcher,
		writer:    writer,
		pruner:    pruner,
		callDelay: callDelay,
		log:       log,
		now:       time.Now,
	}
}

// Run executes one sync pass. A per-sensor failure is logged, counted and
// does not stop the remaining sensors; only a failure to read the sensor
// list at all fails the whole run.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	started := e.now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		Job:       "sync",
		StartedAt: started.UTC(),
	}
	log := e.log.With().Str("run_id", summary.RunID).Logger()

	sensors, err := e.store.ActiveSensors()
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	log.Info().Int("sensors", len(sensors)).Msg("starting sync run")

	calls := 0
	for _, sensor := range sensors {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		latest, err := e.store.LatestHour(sensor.SegmentID)
		if err != nil {
			summary.SensorsErrored++
			log.Error().Err(err).Int64("segment_id", sensor.SegmentID).Msg("failed to read watermark")
			continue
		}

		window := SyncWindow(latest, e.now())
		if window.Empty() {
			summary.SensorsSkipped++
			continue
		}

		if calls > 0 {
			if err := wait(ctx, e.callDelay); err != nil {
				return summary, err
			}
		}
		calls++

		reports, err := e.fetcher.FetchHourly(ctx, sensor.SegmentID, window.Start, window.End)
		if err != nil {
			summary.SensorsErrored++
			log.Error().Err(err).Int64("segment_id", sensor.SegmentID).Msg("fetch failed")
			continue
		}
		if len(reports) == 0 {
			summary.SensorsSkipped++
			continue
		}

		written, err := e.writer.WriteHourly(sensor.SegmentID, reports)
		summary.RowsWritten += written
		if err != nil {
			summary.SensorsErrored++
			log.Error().Err(err).Int64("segment_id", sensor.SegmentID).Msg("write failed")
			continue
		}

		summary.SensorsUpdated++
		log.Debug().
			Int64("segment_id", sensor.SegmentID).
			Int("rows", written).
			Time("window_start", window.Start).
			Time("window_end", window.End).
			Msg("sensor updated")
	}

	if e.pruner != nil {
		pruned, err := e.pruner.Run()
		if err != nil {
			log.Error().Err(err).Msg("retention pruning failed")
		}
		summary.RowsPruned = pruned
	}

	summary.DurationSeconds = e.now().Sub(started).Seconds()
	log.Info().
		Int("updated", summary.SensorsUpdated).
		Int("skipped", summary.SensorsSkipped).
		Int("errored", summary.SensorsErrored).
		Int("rows_written", summary.RowsWritten).
		Int64("rows_pruned", summary.RowsPruned).
		Float64("seconds", summary.DurationSeconds).
		Msg("sync run complete")

	return summary, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
