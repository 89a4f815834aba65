package storage

import (
	"context"
	"log/slog"
	"time"
)

// catalogLister is the slice of the catalog repository the sweeper needs.
type catalogLister interface {
	StoredNames(ctx context.Context) (map[string]bool, error)
}

// Sweeper periodically removes orphaned blobs: files that were durably
// written by an ingest task whose metadata commit then failed (or whose
// process crashed in between). Blobs younger than the grace period are left
// alone so the sweep never races an in-flight task between its storage write
// and its catalog insert.
type Sweeper struct {
	catalog  catalogLister
	store    Store
	interval time.Duration
	grace    time.Duration
	done     chan struct{}
}

// NewSweeper creates a new orphan sweeper.
func NewSweeper(catalog catalogLister, store Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		catalog:  catalog,
		store:    store,
		interval: interval,
		grace:    time.Hour,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep(ctx context.Context) {
	known, err := s.catalog.StoredNames(ctx)
	if err != nil {
		slog.Error("sweep: failed to list catalog stored names", "error", err)
		return
	}

	blobs, err := s.store.List()
	if err != nil {
		slog.Error("sweep: failed to list stored blobs", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.grace)
	var removed int
	for name, modTime := range blobs {
		if known[name] || modTime.After(cutoff) {
			continue
		}
		if err := s.store.Delete(name); err != nil {
			slog.Error("sweep: failed to delete orphaned blob", "blob", name, "error", err)
			continue
		}
		removed++
		slog.Info("sweep: removed orphaned blob", "blob", name, "mod_time", modTime)
	}

	if removed > 0 {
		slog.Info("sweep cycle complete", "removed", removed, "total_blobs", len(blobs))
	}
}
