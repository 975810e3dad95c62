// Package aggregation rolls hourly fact rows into weekly per-sensor
// aggregates.
package aggregation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RollupStore is the storage surface the aggregator writes through.
type RollupStore interface {
	DeleteWeeklyStats(weekEnding time.Time) error
	InsertWeeklyStats(weekEnding, weekStart, weekEnd time.Time) (int64, error)
}

// WeeklyAggregator recomputes the most recently completed Sunday-Saturday
// week. Recomputing is delete-then-insert, so re-running for the same week
// is idempotent.
type WeeklyAggregator struct {
	store RollupStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewWeeklyAggregator(store RollupStore, log zerolog.Logger) *WeeklyAggregator {
	return &WeeklyAggregator{store: store, log: log, now: time.Now}
}

// TargetWeek returns the Sunday and Saturday bounding the most recently
// completed calendar week as of now. On a Sunday the week that just ended
// ran from the previous Sunday through yesterday; on any other day it is
// the full week before the current one.
func TargetWeek(now time.Time) (sunday, saturday time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	dow := int(today.Weekday()) // 0 = Sunday

	if dow == 0 {
		sunday = today.AddDate(0, 0, -7)
	} else {
		sunday = today.AddDate(0, 0, -dow-7)
	}
	saturday = sunday.AddDate(0, 0, 6)
	return sunday, saturday
}

// Run recomputes the rollup rows for the target week and returns the number
// of rows written.
func (a *WeeklyAggregator) Run() (int64, error) {
	sunday, saturday := TargetWeek(a.now())

	weekStart := sunday
	weekEnd := saturday.Add(24*time.Hour - time.Second) // Saturday 23:59:59

	a.log.Info().
		Str("week_ending", sunday.Format("2006-01-02")).
		Time("week_start", weekStart).
		Time("week_end", weekEnd).
		Msg("aggregating week")

	if err := a.store.DeleteWeeklyStats(sunday); err != nil {
		return 0, fmt.Errorf("failed to clear existing rollups: %w", err)
	}

	rows, err := a.store.InsertWeeklyStats(sunday, weekStart, weekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rollups: %w", err)
	}

	a.log.Info().Int64("rows", rows).Msg("weekly aggregation complete")
	return rows, nil
}
