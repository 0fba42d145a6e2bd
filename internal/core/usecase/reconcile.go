package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// Restore loads the persisted queue after a restart. Items caught in
// processing or saving cannot be resumed safely and are dropped from the
// store; pending, ready and error items come back as status views without a
// file reference.
func (o *Orchestrator) Restore(ctx context.Context) (restored, dropped int, err error) {
	items, err := o.snapshots.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load queue snapshot: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, it := range items {
		if !it.Status.Resting() {
			if err := o.snapshots.Delete(ctx, it.ID); err != nil {
				slog.Warn("snapshot_delete_failed", "item_id", it.ID, "error", err.Error())
			}
			slog.Info("item_dropped_on_restore", "item_id", it.ID, "name", it.Name, "status", it.Status)
			dropped++
			continue
		}
		if _, exists := o.items[it.ID]; exists {
			continue
		}
		item := it
		item.File = nil
		if item.Status == domain.StatusPending {
			item.Progress = "file is no longer available, add it again"
		}
		o.items[item.ID] = &item
		o.order = append(o.order, item.ID)
		restored++
	}
	slog.Info("queue_restored", "restored", restored, "dropped", dropped)
	return restored, dropped, nil
}
