package worker

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/store"
)

// BackfillStore is the store surface the backfill needs.
type BackfillStore interface {
	ConnectedPlatforms(ctx context.Context, tenantID string) ([]string, error)
	InsertSyncLog(ctx context.Context, e *store.SyncLogEntry) error
}

// Backfill runs the full-history load for every connected platform of
// one tenant. It reuses the per-stream runners, whose cursors start
// empty on a fresh connection, so a backfill is simply the first
// unbounded pass over each stream.
type Backfill struct {
	store   BackfillStore
	runners map[string]Runner
}

// NewBackfill wires a Backfill over the per-stream runner table.
func NewBackfill(st BackfillStore, runners map[string]Runner) *Backfill {
	return &Backfill{store: st, runners: runners}
}

// Run executes the backfill. A platform failure is logged to the sync
// log and does not stop the remaining platforms; one completion record
// is written at the end with the total.
func (b *Backfill) Run(ctx context.Context, tenantID string) (int, error) {
	platforms, err := b.store.ConnectedPlatforms(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, platform := range platforms {
		n, err := b.runPlatform(ctx, tenantID, platform)
		total += n
		if err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Str("platform", platform).
				Msg("backfill platform failed, continuing")
			if logErr := b.store.InsertSyncLog(ctx, &store.SyncLogEntry{
				TenantID:     tenantID,
				Platform:     platform,
				SyncType:     "backfill",
				Status:       "failed",
				ErrorMessage: queue.Truncate(err.Error()),
			}); logErr != nil {
				log.Warn().Err(logErr).Msg("backfill failure log write failed")
			}
		}
	}

	if err := b.store.InsertSyncLog(ctx, &store.SyncLogEntry{
		TenantID:      tenantID,
		Platform:      "all",
		SyncType:      "backfill",
		Status:        "completed",
		RecordsSynced: total,
	}); err != nil {
		log.Warn().Err(err).Msg("backfill completion log write failed")
	}
	return total, nil
}

// runPlatform runs every stream of one platform in order, orders
// first. Returns the records synced before any failure.
func (b *Backfill) runPlatform(ctx context.Context, tenantID, platform string) (int, error) {
	total := 0
	for _, jobType := range queue.PlatformJobTypes[platform] {
		runner, ok := b.runners[jobType]
		if !ok {
			continue
		}
		n, err := runner(ctx, tenantID)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var _ BackfillStore = (*store.Store)(nil)
