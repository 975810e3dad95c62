package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

// DropError explains why a single report record was rejected. A dropped
// record never aborts its batch; siblings are still written.
type DropError struct {
	Reason string
}

func (e *DropError) Error() string {
	return "record dropped: " + e.Reason
}

// Normalize converts one upstream report record into a storable hourly
// sample. The upstream is inconsistent about its date field: it may carry a
// full ISO timestamp (truncated here to the hour, in UTC) or a plain
// YYYY-MM-DD date with a separate hour field in [0, 23]. Anything else is a
// DropError. Missing numeric metrics default to zero; a missing v85 stays
// null.
func Normalize(segmentID int64, r telraam.HourlyReport) (database.HourlySample, error) {
	var sample database.HourlySample

	ts, err := hourTimestamp(r)
	if err != nil {
		return sample, err
	}

	sample = database.HourlySample{
		SegmentID:     segmentID,
		HourTimestamp: ts,
		Bike:          intOrZero(r.Bike),
		Car:           intOrZero(r.Car),
		Heavy:         intOrZero(r.Heavy),
		Pedestrian:    intOrZero(r.Pedestrian),
		V85:           r.V85,
		Uptime:        floatOrZero(r.Uptime),
	}
	return sample, nil
}

func hourTimestamp(r telraam.HourlyReport) (time.Time, error) {
	if r.Date == "" {
		return time.Time{}, &DropError{Reason: "missing date"}
	}

	if strings.Contains(r.Date, "T") {
		// Full ISO timestamp like "2025-12-01T14:00:00.000Z".
		parsed, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return time.Time{}, &DropError{Reason: fmt.Sprintf("invalid date %q", r.Date)}
		}
		return parsed.UTC().Truncate(time.Hour), nil
	}

	// Plain date string with a separate hour field.
	day, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, &DropError{Reason: fmt.Sprintf("malformed date %q", r.Date)}
	}
	if r.Hour == nil || *r.Hour < 0 || *r.Hour > 23 {
		return time.Time{}, &DropError{Reason: fmt.Sprintf("invalid hour for date %q", r.Date)}
	}

	return day.Add(time.Duration(*r.Hour) * time.Hour).UTC(), nil
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
