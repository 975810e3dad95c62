package monitoring

import (
	"testing"
	"time"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
)

var (
	todayStart = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	evalNow    = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
)

func stats(records, sensors int, newest *time.Time) database.DayStats {
	return database.DayStats{RecordCount: records, SensorCount: sensors, NewestRecord: newest}
}

func TestEvaluateHealthThreshold(t *testing.T) {
	cases := []struct {
		name        string
		today       int
		yesterday   int
		wantHealthy bool
	}{
		{"well below threshold", 50, 100, false},
		{"just under threshold", 69, 100, false},
		{"at threshold", 70, 100, true},
		{"above threshold", 71, 100, true},
		{"both zero", 0, 0, true},
		{"zero yesterday", 10, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := Evaluate(stats(tc.today, 3, nil), stats(tc.yesterday, 3, nil), todayStart, evalNow)
			if snapshot.IsHealthy != tc.wantHealthy {
				t.Errorf("today=%d yesterday=%d: expected healthy=%v, got %v",
					tc.today, tc.yesterday, tc.wantHealthy, snapshot.IsHealthy)
			}
		})
	}
}

func TestEvaluateWorkerLikelyRan(t *testing.T) {
	withRows := Evaluate(stats(1, 1, nil), stats(100, 5, nil), todayStart, evalNow)
	if !withRows.WorkerLikelyRan {
		t.Error("any rows today mean the worker likely ran")
	}

	noRows := Evaluate(stats(0, 0, nil), stats(100, 5, nil), todayStart, evalNow)
	if noRows.WorkerLikelyRan {
		t.Error("zero rows today mean the worker likely did not run")
	}
}

func TestEvaluateFreshness(t *testing.T) {
	newest := time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC)
	snapshot := Evaluate(stats(10, 2, &newest), stats(20, 2, nil), todayStart, evalNow)

	if snapshot.DataFreshnessHours == nil {
		t.Fatal("expected freshness when data exists")
	}
	if *snapshot.DataFreshnessHours != 3.0 {
		t.Errorf("expected 3h freshness, got %v", *snapshot.DataFreshnessHours)
	}
}

func TestEvaluateFreshnessFallsBackToYesterday(t *testing.T) {
	newest := time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC)
	snapshot := Evaluate(stats(0, 0, nil), stats(20, 2, &newest), todayStart, evalNow)

	if snapshot.DataFreshnessHours == nil {
		t.Fatal("expected freshness from yesterday's newest record")
	}
	if *snapshot.DataFreshnessHours != 16.0 {
		t.Errorf("expected 16h freshness, got %v", *snapshot.DataFreshnessHours)
	}
}

func TestEvaluateFreshnessNilWithoutData(t *testing.T) {
	snapshot := Evaluate(stats(0, 0, nil), stats(0, 0, nil), todayStart, evalNow)
	if snapshot.DataFreshnessHours != nil {
		t.Errorf("expected nil freshness with no data, got %v", *snapshot.DataFreshnessHours)
	}
}

func TestEvaluateDayLabels(t *testing.T) {
	snapshot := Evaluate(stats(1, 1, nil), stats(1, 1, nil), todayStart, evalNow)
	if snapshot.Today.Date != "2026-03-10" {
		t.Errorf("unexpected today label %q", snapshot.Today.Date)
	}
	if snapshot.Yesterday.Date != "2026-03-09" {
		t.Errorf("unexpected yesterday label %q", snapshot.Yesterday.Date)
	}
}

type fakeStatsStore struct {
	byDay map[string]database.DayStats
	days  []time.Time
}

func (s *fakeStatsStore) DayStatsFor(dayStart time.Time) (*database.DayStats, error) {
	s.days = append(s.days, dayStart)
	stats := s.byDay[dayStart.Format("2006-01-02")]
	return &stats, nil
}

func TestMonitorSnapshotQueriesBothDays(t *testing.T) {
	store := &fakeStatsStore{byDay: map[string]database.DayStats{
		"2026-03-10": {RecordCount: 80, SensorCount: 4},
		"2026-03-09": {RecordCount: 100, SensorCount: 5},
	}}
	m := NewMonitor(store)
	m.now = func() time.Time { return evalNow }

	snapshot, err := m.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.days) != 2 {
		t.Fatalf("expected two day queries, got %v", store.days)
	}
	if !store.days[0].Equal(todayStart) || !store.days[1].Equal(todayStart.AddDate(0, 0, -1)) {
		t.Errorf("unexpected query days %v", store.days)
	}
	if !snapshot.IsHealthy {
		t.Error("80 of 100 should be healthy")
	}
}
