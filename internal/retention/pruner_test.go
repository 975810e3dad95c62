package retention

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePruneStore struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (s *fakePruneStore) PruneHourlyBefore(cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return s.deleted, s.err
}

func TestRunUsesConfiguredHorizon(t *testing.T) {
	store := &fakePruneStore{deleted: 42}
	p := NewPruner(store, 7, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC) }

	deleted, err := p.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 42 {
		t.Errorf("expected 42 deleted, got %d", deleted)
	}

	want := time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC)
	if len(store.cutoffs) != 1 || !store.cutoffs[0].Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, store.cutoffs)
	}
}

func TestRunPropagatesStoreError(t *testing.T) {
	store := &fakePruneStore{err: errors.New("statement timeout")}
	p := NewPruner(store, 7, zerolog.Nop())

	if _, err := p.Run(); err == nil {
		t.Fatal("expected error")
	}
}
