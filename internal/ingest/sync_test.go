package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyclecounts/traffic-pipeline/internal/database"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

type fakeSensorStore struct {
	sensors    []database.SensorLocation
	listErr    error
	watermarks map[int64]*time.Time
	markErr    map[int64]error
}

func (s *fakeSensorStore) ActiveSensors() ([]database.SensorLocation, error) {
	return s.sensors, s.listErr
}

func (s *fakeSensorStore) LatestHour(segmentID int64) (*time.Time, error) {
	if err := s.markErr[segmentID]; err != nil {
		return nil, err
	}
	return s.watermarks[segmentID], nil
}

type fetchCall struct {
	segmentID  int64
	start, end time.Time
}

type fakeFetcher struct {
	calls   []fetchCall
	reports map[int64][]telraam.HourlyReport
	errs    map[int64]error
}

func (f *fakeFetcher) FetchHourly(ctx context.Context, segmentID int64, start, end time.Time) ([]telraam.HourlyReport, error) {
	f.calls = append(f.calls, fetchCall{segmentID: segmentID, start: start, end: end})
	if err := f.errs[segmentID]; err != nil {
		return nil, err
	}
	return f.reports[segmentID], nil
}

type fakeWriter struct {
	written map[int64]int
	errs    map[int64]error
}

func (w *fakeWriter) WriteHourly(segmentID int64, reports []telraam.HourlyReport) (int, error) {
	if w.written == nil {
		w.written = make(map[int64]int)
	}
	if err := w.errs[segmentID]; err != nil {
		return 0, err
	}
	w.written[segmentID] += len(reports)
	return len(reports), nil
}

type fakePruner struct {
	pruned int64
	err    error
	calls  int
}

func (p *fakePruner) Run() (int64, error) {
	p.calls++
	return p.pruned, p.err
}

func sensor(id int64) database.SensorLocation {
	return database.SensorLocation{SegmentID: id, Timezone: "Europe/Brussels", Status: "active"}
}

func timep(t time.Time) *time.Time { return &t }

func newTestEngine(store *fakeSensorStore, fetcher *fakeFetcher, writer *fakeWriter, pruner Pruner, now time.Time) *Engine {
	e := NewEngine(store, fetcher, writer, pruner, 0, zerolog.Nop())
	e.now = func() time.Time { return now }
	return e
}

func TestRunFetchesFromWatermark(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	latest := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	store := &fakeSensorStore{
		sensors:    []database.SensorLocation{sensor(42)},
		watermarks: map[int64]*time.Time{42: timep(latest)},
	}
	fetcher := &fakeFetcher{reports: map[int64][]telraam.HourlyReport{
		42: {report("2026-03-10", 12, 5)},
	}}
	writer := &fakeWriter{}

	summary, err := newTestEngine(store, fetcher, writer, nil, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fetcher.calls) != 1 {
		t.Fatalf("expected one fetch, got %d", len(fetcher.calls))
	}
	call := fetcher.calls[0]
	wantStart := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if !call.start.Equal(wantStart) || !call.end.Equal(wantEnd) {
		t.Errorf("expected window [%v, %v], got [%v, %v]", wantStart, wantEnd, call.start, call.end)
	}
	if summary.SensorsUpdated != 1 || summary.RowsWritten != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRunSkipsUpToDateSensor(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	latest := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := &fakeSensorStore{
		sensors:    []database.SensorLocation{sensor(42)},
		watermarks: map[int64]*time.Time{42: timep(latest)},
	}
	fetcher := &fakeFetcher{}

	summary, err := newTestEngine(store, fetcher, &fakeWriter{}, nil, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fetcher.calls) != 0 {
		t.Errorf("up-to-date sensor must not be fetched, got %d calls", len(fetcher.calls))
	}
	if summary.SensorsSkipped != 1 || summary.SensorsUpdated != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRunSkipsSensorWithNoNewData(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	store := &fakeSensorStore{
		sensors:    []database.SensorLocation{sensor(42)},
		watermarks: map[int64]*time.Time{},
	}
	fetcher := &fakeFetcher{} // returns no reports
	writer := &fakeWriter{}

	summary, err := newTestEngine(store, fetcher, writer, nil, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.SensorsSkipped != 1 {
		t.Errorf("empty report must count as skipped: %+v", summary)
	}
	if len(writer.written) != 0 {
		t.Error("nothing should be written for an empty report")
	}
}

func TestRunIsolatesSensorFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	store := &fakeSensorStore{
		sensors:    []database.SensorLocation{sensor(1), sensor(2), sensor(3)},
		watermarks: map[int64]*time.Time{},
	}
	fetcher := &fakeFetcher{
		reports: map[int64][]telraam.HourlyReport{
			1: {report("2026-03-10", 10, 5)},
			3: {report("2026-03-10", 10, 7)},
		},
		errs: map[int64]error{2: errors.New("upstream 500")},
	}
	writer := &fakeWriter{}

	summary, err := newTestEngine(store, fetcher, writer, nil, now).Run(context.Background())
	if err != nil {
		t.Fatalf("a sensor failure must not fail the run: %v", err)
	}

	if summary.SensorsUpdated != 2 || summary.SensorsErrored != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if writer.written[1] != 1 || writer.written[3] != 1 {
		t.Errorf("healthy sensors must still be written: %v", writer.written)
	}
}

func TestRunFailsWhenSensorListUnavailable(t *testing.T) {
	store := &fakeSensorStore{listErr: errors.New("db down")}

	_, err := newTestEngine(store, &fakeFetcher{}, &fakeWriter{}, nil, time.Now()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail when the sensor list cannot be read")
	}
}

func TestRunPrunesAtEnd(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	store := &fakeSensorStore{watermarks: map[int64]*time.Time{}}
	pruner := &fakePruner{pruned: 123}

	summary, err := newTestEngine(store, &fakeFetcher{}, &fakeWriter{}, pruner, now).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pruner.calls != 1 {
		t.Errorf("expected one prune call, got %d", pruner.calls)
	}
	if summary.RowsPruned != 123 {
		t.Errorf("expected pruned rows in summary, got %d", summary.RowsPruned)
	}
}

func TestRunPruneFailureDoesNotFailRun(t *testing.T) {
	store := &fakeSensorStore{watermarks: map[int64]*time.Time{}}
	pruner := &fakePruner{err: errors.New("timeout")}

	_, err := newTestEngine(store, &fakeFetcher{}, &fakeWriter{}, pruner, time.Now()).Run(context.Background())
	if err != nil {
		t.Fatalf("prune failure must not fail the run: %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	store := &fakeSensorStore{
		sensors:    []database.SensorLocation{sensor(1), sensor(2)},
		watermarks: map[int64]*time.Time{},
	}
	fetcher := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(store, fetcher, &fakeWriter{}, nil, time.Now()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("no fetches expected after cancellation, got %d", len(fetcher.calls))
	}
}
