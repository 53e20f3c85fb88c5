package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
)

// Stagger parameters: pause after every staggerEvery spawns, and
// between nightly phases, so the row store is not hit by every tenant
// at once.
const (
	staggerEvery = 5
	staggerPause = time.Minute
	phasePause   = 2 * time.Minute
)

// BatchStore is the analytics surface the batches trigger.
type BatchStore interface {
	ListTenants(ctx context.Context) ([]string, error)
	ComputeFinancials(ctx context.Context, tenantID string) error
	MergeCustomers(ctx context.Context, tenantID string) error
	ComputeBestsellers(ctx context.Context, tenantID string) error
	ComputeRFM(ctx context.Context, tenantID string) error
}

// Batch runs the nightly and weekly compute fan-outs.
type Batch struct {
	store     BatchStore
	reconcile func(ctx context.Context) error

	sleep func(time.Duration)
}

// NewBatch wires a Batch. reconcile is the nightly newsletter
// reconciliation step and may be nil.
func NewBatch(s BatchStore, reconcile func(ctx context.Context) error) *Batch {
	return &Batch{store: s, reconcile: reconcile, sleep: time.Sleep}
}

// RunNightly executes the nightly phases in order: financial rollups,
// customer merge, bestsellers, newsletter reconciliation. Per-tenant
// failures are logged and do not stop the phase.
func (b *Batch) RunNightly(ctx context.Context) error {
	tenants, err := b.store.ListTenants(ctx)
	if err != nil {
		return err
	}

	log.Info().Int("tenants", len(tenants)).Msg("nightly batch: financials")
	b.fanOut(ctx, tenants, "financials", b.store.ComputeFinancials)
	b.sleep(phasePause)

	log.Info().Int("tenants", len(tenants)).Msg("nightly batch: customer merge")
	b.fanOut(ctx, tenants, "customer_merge", b.store.MergeCustomers)
	b.sleep(phasePause)

	log.Info().Int("tenants", len(tenants)).Msg("nightly batch: bestsellers")
	b.fanOut(ctx, tenants, "bestsellers", b.store.ComputeBestsellers)

	if b.reconcile != nil {
		log.Info().Msg("nightly batch: newsletter reconciliation")
		if err := b.reconcile(ctx); err != nil {
			log.Error().Err(err).Msg("newsletter reconciliation failed")
		}
	}
	return nil
}

// RunWeeklyRFM recomputes RFM segments for every tenant.
func (b *Batch) RunWeeklyRFM(ctx context.Context) error {
	tenants, err := b.store.ListTenants(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("tenants", len(tenants)).Msg("weekly rfm")
	b.fanOut(ctx, tenants, "rfm", b.store.ComputeRFM)
	return nil
}

// fanOut runs one compute step per tenant, pausing after every
// staggerEvery tenants.
func (b *Batch) fanOut(ctx context.Context, tenants []string, phase string, step func(context.Context, string) error) {
	for i, tenant := range tenants {
		if i > 0 && i%staggerEvery == 0 {
			b.sleep(staggerPause)
		}
		if err := step(ctx, tenant); err != nil {
			log.Error().Err(err).Str("tenant", tenant).Str("phase", phase).
				Msg("batch compute step failed")
		}
	}
}

var _ BatchStore = (*store.Store)(nil)
