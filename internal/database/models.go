package database

import (
	"time"
)

// SensorLocation is the metadata row for a Telraam segment. The metadata
// itself is owned by the admin collaborator; the ingestion core only reads
// identifier, timezone, status and (for rollups) county.
type SensorLocation struct {
	SegmentID int64
	Timezone  string
	County    string
	Status    string
}

const SensorStatusInactive = "inactive"

// HourlySample is one fact row keyed by (segment_id, hour_timestamp).
// HourTimestamp is always truncated to the top of an hour, in UTC.
type HourlySample struct {
	SegmentID     int64
	HourTimestamp time.Time
	Bike          int
	Car           int
	Heavy         int
	Pedestrian    int
	V85           *float64
	Uptime        float64
}

// WeeklyRollup is an aggregate row for one sensor over one Sunday-Saturday
// week. WeekEnding is the Sunday that starts the 7-day window.
type WeeklyRollup struct {
	WeekEnding time.Time
	SegmentID  int64
	County     string
	TotalBikes int
	AvgDaily   int
}

// DayStats summarizes the hourly rows ingested during one UTC calendar day.
type DayStats struct {
	RecordCount  int
	SensorCount  int
	OldestRecord *time.Time
	NewestRecord *time.Time
}
