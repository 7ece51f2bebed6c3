// Package registry implements the active-set refresh loop of spec §4.3:
// reads the persistent active-token set on a fixed cadence, diffs it
// against the tracker's in-memory view, and reports additions/removals for
// the caller to wire into the aggregator set and buffer replay.
package registry

import (
	"context"
	"log"
	"time"

	"tokentracker/database"
)

// Store is the persistence contract the refresher needs. database.Registry
// satisfies it; tests can substitute a fake.
type Store interface {
	ActiveSet(ctx context.Context) (map[string]database.ActiveTokenRecord, error)
	LoadPhases(ctx context.Context) ([]database.PhaseDescriptor, error)
}

// Diff is the result of comparing a freshly-read active set against the
// previous one: newly active tokens (with their record) and tokens that
// dropped out.
type Diff struct {
	Added   map[string]database.ActiveTokenRecord
	Removed []string
}

// Refresher owns the in-memory view of the active set and produces a Diff
// each time Refresh is called.
type Refresher struct {
	store Store
	known map[string]database.ActiveTokenRecord
}

// New returns a Refresher with an empty known set.
func New(store Store) *Refresher {
	return &Refresher{store: store, known: make(map[string]database.ActiveTokenRecord)}
}

// Refresh reads the current active set and diffs it against the
// previously-known one, per spec §4.3's refresh-cadence diffing. Read
// failures are returned to the caller, who should log and retry at the
// next cadence without tearing down existing aggregators.
func (r *Refresher) Refresh(ctx context.Context) (Diff, error) {
	current, err := r.store.ActiveSet(ctx)
	if err != nil {
		return Diff{}, err
	}

	diff := Diff{Added: make(map[string]database.ActiveTokenRecord)}
	for token, record := range current {
		if _, ok := r.known[token]; !ok {
			diff.Added[token] = record
		}
	}
	for token := range r.known {
		if _, ok := current[token]; !ok {
			diff.Removed = append(diff.Removed, token)
		}
	}

	r.known = current
	return diff, nil
}

// Known reports whether token is currently in the refresher's in-memory
// active set, without touching the store.
func (r *Refresher) Known(token string) (database.ActiveTokenRecord, bool) {
	rec, ok := r.known[token]
	return rec, ok
}

// Run drives Refresh on a fixed interval until ctx is cancelled, invoking
// onDiff for every successful refresh. Errors are logged and do not stop
// the loop, matching spec §4.3's "failures ... do not tear down the
// aggregator set."
func Run(ctx context.Context, r *Refresher, interval time.Duration, onDiff func(Diff)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			diff, err := r.Refresh(ctx)
			if err != nil {
				log.Printf("⚠️  active-set refresh failed, retrying next cadence: %v", err)
				continue
			}
			onDiff(diff)
		}
	}
}
