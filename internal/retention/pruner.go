// Package retention deletes hourly rows past the storage horizon.
package retention

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is the delete path the pruner drives.
type Store interface {
	PruneHourlyBefore(cutoff time.Time) (int64, error)
}

// Pruner removes hourly rows older than the configured horizon relative to
// invocation time.
type Pruner struct {
	store Store
	days  int
	log   zerolog.Logger
	now   func() time.Time
}

func NewPruner(store Store, days int, log zerolog.Logger) *Pruner {
	return &Pruner{store: store, days: days, log: log, now: time.Now}
}

// Run deletes aged rows and returns the count removed.
func (p *Pruner) Run() (int64, error) {
	cutoff := p.now().UTC().AddDate(0, 0, -p.days)

	deleted, err := p.store.PruneHourlyBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rows before %s: %w",
			cutoff.Format(time.RFC3339), err)
	}

	p.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("retention pruning complete")
	return deleted, nil
}
