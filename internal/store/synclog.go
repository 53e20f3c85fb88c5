package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SyncLogEntry is one append-only record of a sync attempt.
type SyncLogEntry struct {
	TenantID      string
	Platform      string
	SyncType      string
	Status        string
	ErrorMessage  string
	RecordsSynced int
	Details       map[string]any
}

// InsertSyncLog appends a sync log row. Log writes are best-effort for
// callers; they wrap the error themselves when it matters.
func (s *Store) InsertSyncLog(ctx context.Context, e *SyncLogEntry) error {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode sync log details: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO sync_logs (user_id, platform, sync_type, status, error_message,
		                       records_synced, details, started_at)
		VALUES ($1,$2,$3,$4, NULLIF($5,''), $6, $7, now())
	`, e.TenantID, e.Platform, e.SyncType, e.Status, e.ErrorMessage, e.RecordsSynced, detailsJSON)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}
