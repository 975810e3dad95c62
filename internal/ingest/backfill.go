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

// BackfillStore provides the reads the planner needs. Candidates are
// ordered by how shallow their stored history is, so repeated runs spread
// progress evenly without cursor state.
type BackfillStore interface {
	BackfillCandidates(limit int) ([]database.SensorLocation, error)
	OldestHour(segmentID int64) (*time.Time, error)
}

// Archiver persists the raw validated report payloads as an audit trail.
type Archiver interface {
	ArchiveReports(ctx context.Context, segmentID int64, window Window, reports []telraam.HourlyReport) error
}

// Planner extends each sensor's historical depth by fetching the configured
// number of days immediately preceding its oldest stored hour. It never
// advances past the oldest point, only walks backward in fixed-size steps
// across repeated invocations, and runs with a longer inter-call delay than
// forward sync.
type Planner struct {
	store     BackfillStore
	fetcher   ReportFetcher
	writer    HourlyWriter
	archiver  Archiver
	days      int
	batchSize int
	callDelay time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewPlanner(store BackfillStore, fetcher ReportFetcher, writer HourlyWriter, archiver Archiver, days, batchSize int, callDelay time.Duration, log zerolog.Logger) *Planner {
	return &Planner{
		store:     store,
		fetcher:   fetcher,
		writer:    writer,
		archiver:  archiver,
		days:      days,
		batchSize: batchSize,
		callDelay: callDelay,
		log:       log,
		now:       time.Now,
	}
}

// Run executes one backfill pass over at most batchSize sensors.
func (p *Planner) Run(ctx context.Context) (*Summary, error) {
	started := p.now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		Job:       "backfill",
		StartedAt: started.UTC(),
	}
	log := p.log.With().Str("run_id", summary.RunID).Logger()

	sensors, err := p.store.BackfillCandidates(p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill candidates: %w", err)
	}
	log.Info().Int("sensors", len(sensors)).Int("days", p.days).Msg("starting backfill run")

	calls := 0
	for _, sensor := range sensors {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		oldest, err := p.store.OldestHour(sensor.SegmentID)
		if err != nil {
			summary.SensorsErrored++
			log.Error().Err(err).Int64("segment_id", sensor.SegmentID).Msg("failed to read oldest hour")
			continue
		}

		window := BackfillWindow(oldest, p.now(), p.days)
		if window.Empty() {
			summary.SensorsSkipped++
			continue
		}

		if calls > 0 {
			if err := wait(ctx, p.callDelay); err != nil {
				return summary, err
			}
		}
		calls++

		reports, err := p.fetcher.FetchHourly(ctx, sensor.SegmentID, window.Start, window.End)
		if err != nil {
			summary.SensorsErrored++
			log.Error().Err(err).Int64("segment_id", sensor.SegmentID).Msg("fetch failed")
			continue
		}
		if len(reports) == 0 {
			summary.SensorsSkipped++
			continue
		}

		// Audit trail is best effort: a failed archive write must not
		// block ingestion.
		if p.archiver != nil {
			if err := p.archiver.ArchiveReports(ctx, sensor.SegmentID, window, reports); err != nil {
				log.Warn().Err(err).Int64("segment_id", sensor.SegmentID).Msg("archive write failed")
			}
		}

		written, err := p.writer.WriteHourly(sensor.SegmentID, reports)
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
			Msg("sensor backfilled")
	}

	summary.DurationSeconds = p.now().Sub(started).Seconds()
	log.Info().
		Int("updated", summary.SensorsUpdated).
		Int("skipped", summary.SensorsSkipped).
		Int("errored", summary.SensorsErrored).
		Int("rows_written", summary.RowsWritten).
		Float64("seconds", summary.DurationSeconds).
		Msg("backfill run complete")

	return summary, nil
}
