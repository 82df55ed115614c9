package workers

import (
	"context"
	"log"
	"time"

	"github.com/Pererenchina/home-monitor-bot/storage"
)

// PruneWorker removes listings that the healthcheck marked inactive once
// they have aged past the retention window, together with their delivery
// marks. Active listings are never pruned, so dedup history for anything
// still on the market stays intact.
type PruneWorker struct {
	store     storage.Store
	interval  time.Duration
	retention time.Duration
	triggerCh chan struct{}
}

func NewPruneWorker(store storage.Store, interval, retention time.Duration) *PruneWorker {
	return &PruneWorker{
		store:     store,
		interval:  interval,
		retention: retention,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to prune immediately.
func (w *PruneWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *PruneWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.prune(ctx)
		case <-w.triggerCh:
			w.prune(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *PruneWorker) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.retention)
	n, err := w.store.PruneInactiveBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Prune: failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Prune: removed %d inactive listings older than %s", n, cutoff.Format(time.RFC3339))
	}
}
