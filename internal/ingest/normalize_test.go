package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

func intp(v int) *int             { return &v }
func floatp(v float64) *float64   { return &v }

func TestNormalizePlainDateWithHour(t *testing.T) {
	report := telraam.HourlyReport{
		Date:       "2025-12-01",
		Hour:       intp(14),
		Uptime:     floatp(0.85),
		Bike:       intp(34),
		Car:        intp(120),
		Heavy:      intp(2),
		Pedestrian: intp(10),
		V85:        floatp(42.5),
	}

	sample, err := Normalize(9000001435, report)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)
	if !sample.HourTimestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, sample.HourTimestamp)
	}
	if sample.SegmentID != 9000001435 {
		t.Errorf("unexpected segment id %d", sample.SegmentID)
	}
	if sample.Bike != 34 || sample.Car != 120 || sample.Heavy != 2 || sample.Pedestrian != 10 {
		t.Errorf("unexpected metrics: %+v", sample)
	}
	if sample.V85 == nil || *sample.V85 != 42.5 {
		t.Errorf("expected v85 42.5, got %v", sample.V85)
	}
	if sample.Uptime != 0.85 {
		t.Errorf("expected uptime 0.85, got %v", sample.Uptime)
	}
}

func TestNormalizeISOTimestampTruncatesToHour(t *testing.T) {
	report := telraam.HourlyReport{Date: "2025-12-01T14:30:45.000Z", Uptime: floatp(1)}

	sample, err := Normalize(1, report)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)
	if !sample.HourTimestamp.Equal(want) {
		t.Errorf("expected truncation to %v, got %v", want, sample.HourTimestamp)
	}
}

func TestNormalizeDefaultsMissingMetrics(t *testing.T) {
	report := telraam.HourlyReport{Date: "2025-12-01", Hour: intp(0)}

	sample, err := Normalize(1, report)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if sample.Bike != 0 || sample.Car != 0 || sample.Heavy != 0 || sample.Pedestrian != 0 {
		t.Errorf("expected zero defaults, got %+v", sample)
	}
	if sample.Uptime != 0 {
		t.Errorf("expected zero uptime, got %v", sample.Uptime)
	}
	if sample.V85 != nil {
		t.Errorf("missing v85 must stay null, got %v", *sample.V85)
	}
}

func TestNormalizeDropsBadRecords(t *testing.T) {
	cases := map[string]telraam.HourlyReport{
		"missing date":     {Hour: intp(5)},
		"malformed date":   {Date: "2025-13-40", Hour: intp(5)},
		"garbage date":     {Date: "last tuesday", Hour: intp(5)},
		"invalid iso date": {Date: "2025-13-40T99:00:00Z"},
		"missing hour":     {Date: "2025-12-01"},
		"hour too big":     {Date: "2025-12-01", Hour: intp(24)},
		"negative hour":    {Date: "2025-12-01", Hour: intp(-1)},
	}

	for name, report := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(1, report)
			var drop *DropError
			if !errors.As(err, &drop) {
				t.Fatalf("expected DropError, got %v", err)
			}
		})
	}
}
