package newsletter

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
)

// Store is the subscriber-table surface the sync needs.
type Store interface {
	UpsertSubscriber(ctx context.Context, sub *store.Subscriber) (string, error)
	SetSubstackStatus(ctx context.Context, tenantID, email, status, errMsg string) error
	MarkUnsubscribed(ctx context.Context, tenantID, email string) error
	PendingSubscribers(ctx context.Context, tenantID string, limit int) ([]store.Subscriber, error)
	AllSubscribers(ctx context.Context, tenantID string) ([]store.Subscriber, error)
	InsertNewsletterLog(ctx context.Context, tenantID, subscriberID, action, source, status, errMsg string, metadata map[string]any) error
}

// Forwarder pushes one subscriber downstream. *Substack satisfies it.
type Forwarder interface {
	Subscribe(ctx context.Context, email string) ForwardResult
}

// UpstreamList fetches the authoritative subscriber list. *Beehiiv
// satisfies it.
type UpstreamList interface {
	ActiveSubscribers(ctx context.Context) ([]UpstreamSubscriber, error)
}

// Event is a Beehiiv webhook payload.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Tags  []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"data"`
}

const retryBatchLimit = 50

// ErrNoEmail marks a webhook payload without a subscriber email.
var ErrNoEmail = errors.New("no email in webhook payload")

// Syncer applies newsletter events and jobs for the owning tenant.
// The newsletter tables are single-tenant in practice: every record is
// keyed to the configured owner.
type Syncer struct {
	store    Store
	substack Forwarder
	beehiiv  UpstreamList
	tenantID string
}

// NewSyncer wires a Syncer for the owner tenant.
func NewSyncer(st Store, substack Forwarder, beehiiv UpstreamList, tenantID string) *Syncer {
	return &Syncer{store: st, substack: substack, beehiiv: beehiiv, tenantID: tenantID}
}

// HandleNewSubscriber records a subscriber.created event and forwards
// the subscriber downstream. Returns the resulting substack status.
func (s *Syncer) HandleNewSubscriber(ctx context.Context, ev Event) (string, error) {
	email := strings.ToLower(ev.Data.Email)
	if email == "" {
		return "", ErrNoEmail
	}

	tags := make([]string, 0, len(ev.Data.Tags))
	for _, t := range ev.Data.Tags {
		tags = append(tags, t.Name)
	}

	subID, err := s.store.UpsertSubscriber(ctx, &store.Subscriber{
		TenantID:      s.tenantID,
		Email:         email,
		BeehiivID:     ev.Data.ID,
		BeehiivStatus: "active",
		Tags:          tags,
	})
	if err != nil {
		return "", err
	}

	status := s.forward(ctx, email)

	s.logAttempt(ctx, subID, "subscribe", "beehiiv_webhook", status == store.SubStatusConfirmationSent, "", map[string]any{
		"beehiiv_id": ev.Data.ID,
		"tags":       tags,
	})
	log.Info().Str("email", email).Str("substack_status", status).Msg("processed new subscriber")
	return status, nil
}

// HandleUnsubscribe records a subscriber.unsubscribed or
// subscriber.deleted event. Substack exposes no unsubscribe API, so the
// row is only flagged for manual removal.
func (s *Syncer) HandleUnsubscribe(ctx context.Context, ev Event) error {
	email := strings.ToLower(ev.Data.Email)
	if email == "" {
		return ErrNoEmail
	}

	if err := s.store.MarkUnsubscribed(ctx, s.tenantID, email); err != nil {
		return err
	}

	s.logAttempt(ctx, "", "unsubscribe", "beehiiv_webhook", true, "", map[string]any{
		"beehiiv_id": ev.Data.ID,
		"email":      email,
	})
	log.Info().Str("email", email).Msg("processed unsubscribe, flagged for manual downstream removal")
	return nil
}

// RetryPending re-forwards subscribers parked in pending or failed.
// Returns (retried, succeeded).
func (s *Syncer) RetryPending(ctx context.Context) (int, int, error) {
	pending, err := s.store.PendingSubscribers(ctx, s.tenantID, retryBatchLimit)
	if err != nil {
		return 0, 0, err
	}

	succeeded := 0
	for _, sub := range pending {
		status := s.forward(ctx, sub.Email)
		ok := status == store.SubStatusConfirmationSent
		if ok {
			succeeded++
		}
		s.logAttempt(ctx, sub.ID, "subscribe", "retry_job", ok, "", nil)
	}

	log.Info().Int("retried", len(pending)).Int("succeeded", succeeded).Msg("newsletter retry job finished")
	return len(pending), succeeded, nil
}

// Reconcile diffs the upstream active list against local records:
// upstream-only subscribers are stored and forwarded, local-only active
// ones are flagged pending_unsub. Catches events the webhook flow
// missed.
func (s *Syncer) Reconcile(ctx context.Context) error {
	upstream, err := s.beehiiv.ActiveSubscribers(ctx)
	if err != nil {
		return err
	}
	local, err := s.store.AllSubscribers(ctx, s.tenantID)
	if err != nil {
		return err
	}

	upstreamEmails := make(map[string]bool, len(upstream))
	for _, sub := range upstream {
		upstreamEmails[strings.ToLower(sub.Email)] = true
	}
	localByEmail := make(map[string]store.Subscriber, len(local))
	for _, sub := range local {
		localByEmail[strings.ToLower(sub.Email)] = sub
	}

	added, flagged := 0, 0

	for _, sub := range upstream {
		email := strings.ToLower(sub.Email)
		if email == "" {
			continue
		}
		if _, known := localByEmail[email]; known {
			continue
		}

		subID, err := s.store.UpsertSubscriber(ctx, &store.Subscriber{
			TenantID:      s.tenantID,
			Email:         email,
			BeehiivID:     sub.ID,
			BeehiivStatus: "active",
			Tags:          sub.TagNames(),
		})
		if err != nil {
			log.Error().Err(err).Str("email", email).Msg("reconciliation upsert failed")
			continue
		}

		status := s.forward(ctx, email)
		s.logAttempt(ctx, subID, "subscribe", "reconciliation", status == store.SubStatusConfirmationSent, "", map[string]any{"email": email})
		added++
	}

	for email, sub := range localByEmail {
		if sub.BeehiivStatus != "active" || upstreamEmails[email] {
			continue
		}
		if err := s.store.MarkUnsubscribed(ctx, s.tenantID, email); err != nil {
			log.Error().Err(err).Str("email", email).Msg("reconciliation unsubscribe flag failed")
			continue
		}
		s.logAttempt(ctx, sub.ID, "unsubscribe", "reconciliation", true, "", map[string]any{"email": email})
		flagged++
	}

	log.Info().Int("added", added).Int("flagged_unsub", flagged).Msg("newsletter reconciliation finished")
	return nil
}

// forward pushes one email downstream and persists the resulting
// status: 200 confirmation_sent, 429 pending, anything else failed.
func (s *Syncer) forward(ctx context.Context, email string) string {
	result := s.substack.Subscribe(ctx, email)

	status := store.SubStatusFailed
	errMsg := result.Detail
	switch {
	case result.Success:
		status = store.SubStatusConfirmationSent
		errMsg = ""
	case result.StatusCode == 429:
		status = store.SubStatusPending
	}

	if err := s.store.SetSubstackStatus(ctx, s.tenantID, email, status, errMsg); err != nil {
		log.Error().Err(err).Str("email", email).Msg("failed to persist substack status")
	}
	return status
}

func (s *Syncer) logAttempt(ctx context.Context, subscriberID, action, source string, ok bool, errMsg string, metadata map[string]any) {
	status := "failed"
	if ok {
		status = "success"
	}
	if err := s.store.InsertNewsletterLog(ctx, s.tenantID, subscriberID, action, source, status, errMsg, metadata); err != nil {
		log.Warn().Err(err).Msg("newsletter log write failed")
	}
}

var _ Store = (*store.Store)(nil)

var _ Forwarder = (*Substack)(nil)

var _ UpstreamList = (*Beehiiv)(nil)
