package ingest

import (
	"time"
)

// Window is an inclusive-at-the-hour fetch range. End never includes the
// current, still-accumulating hour.
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether there is nothing to fetch.
func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}

// SyncWindow computes the forward catch-up window for a sensor given its
// stored watermark. With no data yet, the last 24 complete hours are
// fetched; otherwise the window runs from the hour after the watermark up
// to "now minus one hour".
func SyncWindow(latest *time.Time, now time.Time) Window {
	nowHour := now.UTC().Truncate(time.Hour)
	end := nowHour.Add(-time.Hour)

	if latest == nil {
		return Window{Start: nowHour.Add(-24 * time.Hour), End: end}
	}
	return Window{Start: latest.UTC().Add(time.Hour), End: end}
}

// BackfillWindow computes the backward window for a sensor: days worth of
// history immediately preceding the oldest stored hour, or preceding the
// end of yesterday when no data exists. It never reaches past the sensor's
// existing oldest point, so repeated runs walk strictly backward.
func BackfillWindow(oldest *time.Time, now time.Time, days int) Window {
	if oldest == nil {
		yesterdayEnd := now.UTC().Truncate(24 * time.Hour).Add(-time.Second)
		return Window{Start: yesterdayEnd.AddDate(0, 0, -days), End: yesterdayEnd}
	}
	end := oldest.UTC()
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}
