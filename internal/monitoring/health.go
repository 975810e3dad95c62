// Package monitoring computes the read-only ingestion health diagnostic
// polled by external alerting.
package monitoring

import (
	"fmt"
	"time"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
)

// healthyRatio is the fraction of yesterday's row count today must reach
// for ingestion to be considered healthy.
const healthyRatio = 0.7

// Store is the read surface the monitor needs.
type Store interface {
	DayStatsFor(dayStart time.Time) (*database.DayStats, error)
}

// DayReport is the per-day slice of the snapshot.
type DayReport struct {
	Date         string     `json:"date"`
	RecordCount  int        `json:"record_count"`
	SensorCount  int        `json:"sensor_count"`
	OldestRecord *time.Time `json:"oldest_record"`
	NewestRecord *time.Time `json:"newest_record"`
}

// Snapshot compares today's ingestion against yesterday's to flag worker
// failures.
type Snapshot struct {
	Today              DayReport  `json:"today"`
	Yesterday          DayReport  `json:"yesterday"`
	IsHealthy          bool       `json:"is_healthy"`
	WorkerLikelyRan    bool       `json:"worker_likely_ran"`
	DataFreshnessHours *float64   `json:"data_freshness_hours"`
	GeneratedAt        time.Time  `json:"generated_at"`
}

// Evaluate derives health flags from the two day summaries. Pure so the
// threshold edge cases stay unit-testable.
func Evaluate(today, yesterday database.DayStats, todayStart, now time.Time) Snapshot {
	snapshot := Snapshot{
		Today: DayReport{
			Date:         todayStart.Format("2006-01-02"),
			RecordCount:  today.RecordCount,
			SensorCount:  today.SensorCount,
			OldestRecord: today.OldestRecord,
			NewestRecord: today.NewestRecord,
		},
		Yesterday: DayReport{
			Date:         todayStart.AddDate(0, 0, -1).Format("2006-01-02"),
			RecordCount:  yesterday.RecordCount,
			SensorCount:  yesterday.SensorCount,
			OldestRecord: yesterday.OldestRecord,
			NewestRecord: yesterday.NewestRecord,
		},
		IsHealthy:       float64(today.RecordCount) >= float64(yesterday.RecordCount)*healthyRatio,
		WorkerLikelyRan: today.RecordCount > 0,
		GeneratedAt:     now.UTC(),
	}

	latest := today.NewestRecord
	if latest == nil {
		latest = yesterday.NewestRecord
	}
	if latest != nil {
		hours := now.Sub(*latest).Hours()
		snapshot.DataFreshnessHours = &hours
	}

	return snapshot
}

// Monitor produces health snapshots. It never mutates state.
type Monitor struct {
	store Store
	now   func() time.Time
}

func NewMonitor(store Store) *Monitor {
	return &Monitor{store: store, now: time.Now}
}

// Snapshot computes the diagnostic for the current UTC calendar day and
// the day before.
func (m *Monitor) Snapshot() (*Snapshot, error) {
	now := m.now().UTC()
	todayStart := now.Truncate(24 * time.Hour)

	today, err := m.store.DayStatsFor(todayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read today's stats: %w", err)
	}
	yesterday, err := m.store.DayStatsFor(todayStart.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to read yesterday's stats: %w", err)
	}

	snapshot := Evaluate(*today, *yesterday, todayStart, now)
	return &snapshot, nil
}
