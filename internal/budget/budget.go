// Package budget allocates shared per-platform API quotas across
// tenants. Etsy enforces a single daily quota for every tenant behind
// one API key, so one tenant burning the budget blocks everyone until
// UTC midnight. The budgeter is advisory: the upstream still enforces
// the real limit and 429s are handled by the retry layer.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/store"
)

// Daily request budgets per platform.
var PlatformBudgets = map[string]int{
	"etsy":    10_000, // Etsy v3 shared queries-per-day
	"shopify": 80,     // Shopify REST bucket per store
}

const defaultBudget = 10_000

// SafetyFactor reserves 20% of each tenant's fair share for retries
// and spikes.
const SafetyFactor = 0.8

// FlushInterval is the minimum spacing between ledger writes.
const FlushInterval = 60 * time.Second

type usageKey struct {
	date     string // YYYY-MM-DD UTC
	platform string
	tenant   string
}

type globalKey struct {
	date     string
	platform string
}

// Budgeter tracks per-tenant and global request counters for the
// current UTC day, with periodic persistence so restarts and sibling
// workers stay roughly aligned. Counter drift between workers is
// acceptable.
type Budgeter struct {
	store *store.Store
	now   func() time.Time

	mu            sync.Mutex
	tenantUsage   map[usageKey]int
	globalUsage   map[globalKey]int
	activeTenants map[string]int
	lastFlush     time.Time
}

// New creates a Budgeter over the rate ledger store.
func New(s *store.Store) *Budgeter {
	return &Budgeter{
		store:         s,
		now:           time.Now,
		tenantUsage:   make(map[usageKey]int),
		globalUsage:   make(map[globalKey]int),
		activeTenants: make(map[string]int),
	}
}

func (b *Budgeter) today() string {
	return b.now().UTC().Format("2006-01-02")
}

// resetIfNewDay clears counters once the UTC date rolls over.
// Caller holds b.mu.
func (b *Budgeter) resetIfNewDay() {
	today := b.today()
	for k := range b.tenantUsage {
		if k.date != today {
			b.tenantUsage = make(map[usageKey]int)
			b.globalUsage = make(map[globalKey]int)
			return
		}
	}
}

// platformBudget returns the global daily quota for a platform.
func platformBudget(platform string) int {
	if q, ok := PlatformBudgets[platform]; ok {
		return q
	}
	return defaultBudget
}

// perTenantBudget computes one tenant's fair share. Caller holds b.mu.
func (b *Budgeter) perTenantBudget(platform string) int {
	n := b.activeTenants[platform]
	if n < 1 {
		n = 1
	}
	return int(float64(platformBudget(platform)) / float64(n) * SafetyFactor)
}

// CanRequest reports whether the tenant may issue another call without
// crossing its share or the platform's hard ceiling.
func (b *Budgeter) CanRequest(tenantID, platform string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDay()

	today := b.today()
	if b.globalUsage[globalKey{today, platform}] >= platformBudget(platform) {
		return false
	}
	return b.tenantUsage[usageKey{today, platform, tenantID}] < b.perTenantBudget(platform)
}

// Record counts n issued requests against both ledgers.
func (b *Budgeter) Record(tenantID, platform string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDay()

	today := b.today()
	b.tenantUsage[usageKey{today, platform, tenantID}] += n
	b.globalUsage[globalKey{today, platform}] += n
}

// Remaining returns how many calls the tenant has left today.
func (b *Budgeter) Remaining(tenantID, platform string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDay()

	left := b.perTenantBudget(platform) - b.tenantUsage[usageKey{b.today(), platform, tenantID}]
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot is the observable state of one platform's quota today.
type Snapshot struct {
	Platform        string `json:"platform"`
	Date            string `json:"date"`
	Used            int    `json:"used"`
	Budget          int    `json:"budget"`
	Remaining       int    `json:"remaining"`
	ActiveTenants   int    `json:"active_tenants"`
	PerTenantBudget int    `json:"per_tenant_budget"`
}

// Snapshot returns the numbers for observability and rate-gate logs.
func (b *Budgeter) Snapshot(platform string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDay()

	used := b.globalUsage[globalKey{b.today(), platform}]
	quota := platformBudget(platform)
	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}
	active := b.activeTenants[platform]
	if active < 1 {
		active = 1
	}
	return Snapshot{
		Platform:        platform,
		Date:            b.today(),
		Used:            used,
		Budget:          quota,
		Remaining:       remaining,
		ActiveTenants:   active,
		PerTenantBudget: b.perTenantBudget(platform),
	}
}

// RefreshActiveTenants recomputes per-platform tenant counts from
// connected accounts. Failures keep the last-known values.
func (b *Budgeter) RefreshActiveTenants(ctx context.Context) {
	counts, err := b.store.CountAccountsByPlatform(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("active tenant refresh failed, keeping last-known counts")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for platform, n := range counts {
		if n < 1 {
			n = 1
		}
		b.activeTenants[platform] = n
	}
}

// Flush persists the in-memory ledger, skipping writes made within
// FlushInterval of the previous one unless forced.
func (b *Budgeter) Flush(ctx context.Context, force bool) {
	b.mu.Lock()
	now := b.now().UTC()
	if !force && !b.lastFlush.IsZero() && now.Sub(b.lastFlush) < FlushInterval {
		b.mu.Unlock()
		return
	}
	rows := make([]store.RateLedgerRow, 0, len(b.tenantUsage))
	for k, count := range b.tenantUsage {
		rows = append(rows, store.RateLedgerRow{
			Date:         k.date,
			Platform:     k.platform,
			TenantID:     k.tenant,
			RequestCount: count,
		})
	}
	b.mu.Unlock()

	if len(rows) == 0 {
		b.mu.Lock()
		b.lastFlush = now
		b.mu.Unlock()
		return
	}

	if err := b.store.FlushRateLedger(ctx, rows); err != nil {
		log.Warn().Err(err).Msg("rate ledger flush failed, in-memory counters retained")
		return
	}

	b.mu.Lock()
	b.lastFlush = now
	b.mu.Unlock()
}

// Seed loads today's persisted counters on worker start so a restart
// does not re-spend quota already used.
func (b *Budgeter) Seed(ctx context.Context) {
	rows, err := b.store.LoadRateLedger(ctx, b.today())
	if err != nil {
		log.Warn().Err(err).Msg("rate ledger seed failed, starting from zero")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		b.tenantUsage[usageKey{r.Date, r.Platform, r.TenantID}] = r.RequestCount
		b.globalUsage[globalKey{r.Date, r.Platform}] += r.RequestCount
	}
}
