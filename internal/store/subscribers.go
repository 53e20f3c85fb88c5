package store

import (
	"context"
	"fmt"
	"time"
)

// Substack forwarding states for a newsletter subscriber.
const (
	SubStatusPending          = "pending"
	SubStatusConfirmationSent = "confirmation_sent"
	SubStatusFailed           = "failed"
	SubStatusPendingUnsub     = "pending_unsub"
)

// Subscriber is one newsletter subscriber, unique per (tenant, email).
type Subscriber struct {
	ID             string
	TenantID       string
	Email          string
	BeehiivID      string
	BeehiivStatus  string
	SubstackStatus string
	Tags           []string
	ErrorMessage   *string
	LastWebhookAt  *time.Time
}

// UpsertSubscriber writes a subscriber on (tenant, email) and returns
// the row id.
func (s *Store) UpsertSubscriber(ctx context.Context, sub *Subscriber) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		INSERT INTO newsletter_subscribers (user_id, email, beehiiv_subscriber_id,
		                                    beehiiv_status, tags, last_webhook_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (user_id, email) DO UPDATE SET
			beehiiv_subscriber_id = EXCLUDED.beehiiv_subscriber_id,
			beehiiv_status        = EXCLUDED.beehiiv_status,
			tags                  = EXCLUDED.tags,
			last_webhook_at       = now()
		RETURNING id
	`, sub.TenantID, sub.Email, sub.BeehiivID, sub.BeehiivStatus, sub.Tags).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert subscriber %s: %w", sub.Email, err)
	}
	return id, nil
}

// SetSubstackStatus records the downstream forwarding outcome.
func (s *Store) SetSubstackStatus(ctx context.Context, tenantID, email, status, errMsg string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE newsletter_subscribers SET
			substack_status        = $3,
			error_message          = NULLIF($4, ''),
			synced_to_substack_at  = CASE WHEN $3 = 'confirmation_sent' THEN now()
			                              ELSE synced_to_substack_at END
		WHERE user_id = $1 AND email = $2
	`, tenantID, email, status, errMsg)
	if err != nil {
		return fmt.Errorf("set substack status for %s: %w", email, err)
	}
	return nil
}

// MarkUnsubscribed flags a subscriber as gone upstream and pending a
// manual downstream removal.
func (s *Store) MarkUnsubscribed(ctx context.Context, tenantID, email string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE newsletter_subscribers SET
			beehiiv_status  = 'unsubscribed',
			substack_status = 'pending_unsub',
			last_webhook_at = now()
		WHERE user_id = $1 AND email = $2
	`, tenantID, email)
	return err
}

// PendingSubscribers lists active subscribers whose Substack forward is
// still pending or failed, for the retry job.
func (s *Store) PendingSubscribers(ctx context.Context, tenantID string, limit int) ([]Subscriber, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, email FROM newsletter_subscribers
		WHERE user_id = $1 AND beehiiv_status = 'active'
		  AND substack_status IN ('pending', 'failed')
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email); err != nil {
			return nil, err
		}
		sub.TenantID = tenantID
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// AllSubscribers returns every subscriber for the tenant, for
// reconciliation diffs.
func (s *Store) AllSubscribers(ctx context.Context, tenantID string) ([]Subscriber, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, email, beehiiv_status, substack_status
		FROM newsletter_subscribers
		WHERE user_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.BeehiivStatus, &sub.SubstackStatus); err != nil {
			return nil, err
		}
		sub.TenantID = tenantID
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// InsertNewsletterLog appends one newsletter sync-log record.
func (s *Store) InsertNewsletterLog(ctx context.Context, tenantID, subscriberID, action, source, status, errMsg string, metadata map[string]any) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO newsletter_sync_log (user_id, subscriber_id, action, source, status, error_message, metadata)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, NULLIF($6,''), $7)
	`, tenantID, subscriberID, action, source, status, errMsg, metadata)
	if err != nil {
		return fmt.Errorf("insert newsletter log: %w", err)
	}
	return nil
}
