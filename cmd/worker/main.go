package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/budget"
	"github.com/craftsight/syncengine/internal/config"
	"github.com/craftsight/syncengine/internal/db"
	"github.com/craftsight/syncengine/internal/newsletter"
	"github.com/craftsight/syncengine/internal/notify"
	"github.com/craftsight/syncengine/internal/queue"
	"github.com/craftsight/syncengine/internal/scheduler"
	"github.com/craftsight/syncengine/internal/store"
	"github.com/craftsight/syncengine/internal/vault"
	"github.com/craftsight/syncengine/internal/worker"
)

// jobTimeout bounds one normal sync job.
const jobTimeout = 300 * time.Second

const (
	nightlyTimeout = 7200 * time.Second
	weeklyTimeout  = 1800 * time.Second
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "syncengine-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DataStoreURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	st := store.New(pool)

	v, err := vault.New(st, cfg.EncryptionKey(),
		&vault.EtsyRefresher{APIKey: cfg.EtsyAPIKey},
		&vault.ShopifyRefresher{APIKey: cfg.ShopifyAPIKey, APISecret: cfg.ShopifyAPISecret},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token vault init failed")
	}

	b := budget.New(st)
	b.RefreshActiveTenants(ctx)
	b.Seed(ctx)

	q := queue.New(pool)
	mailer := notify.New(cfg.NotificationAPIKey, cfg.FromEmail)
	registry := worker.NewRegistry(st, v, b, cfg.EtsyAPIKey)
	runtime := worker.New(q, st, registry, mailer)

	sched := scheduler.New(q, st, b, func(job queue.Job) {
		go func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			runtime.Execute(jobCtx, job)
		}()
	})

	beehiiv := newsletter.NewBeehiiv(cfg.BeehiivAPIKey, cfg.BeehiivPublicationID, cfg.BeehiivWebhookSecret)
	substack := newsletter.NewSubstack(cfg.SubstackURL)
	syncer := newsletter.NewSyncer(st, substack, beehiiv, cfg.NewsletterOwnerTenant)

	batch := scheduler.NewBatch(st, syncer.Reconcile)

	c := cron.New()

	mustSchedule(c, "* * * * *", func() {
		tickCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := sched.Tick(tickCtx); err != nil {
			log.Error().Err(err).Msg("scheduler tick failed")
		}
		b.Flush(tickCtx, false)
	})

	mustSchedule(c, "*/10 * * * *", func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		b.RefreshActiveTenants(refreshCtx)
	})

	mustSchedule(c, "0 2 * * *", func() {
		nightCtx, cancel := context.WithTimeout(context.Background(), nightlyTimeout)
		defer cancel()
		if err := batch.RunNightly(nightCtx); err != nil {
			log.Error().Err(err).Msg("nightly batch failed")
		}
	})

	mustSchedule(c, "0 3 * * 0", func() {
		rfmCtx, cancel := context.WithTimeout(context.Background(), weeklyTimeout)
		defer cancel()
		if err := batch.RunWeeklyRFM(rfmCtx); err != nil {
			log.Error().Err(err).Msg("weekly rfm failed")
		}
	})

	if cfg.NewsletterOwnerTenant != "" {
		mustSchedule(c, "*/15 * * * *", func() {
			retryCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, _, err := syncer.RetryPending(retryCtx); err != nil {
				log.Error().Err(err).Msg("newsletter retry job failed")
			}
		})
	}

	c.Start()
	log.Info().Msg("worker scheduler started")

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("timed out waiting for running cron jobs")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.Flush(flushCtx, true)

	log.Info().Msg("worker stopped")
}

func mustSchedule(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		log.Fatal().Err(err).Str("spec", spec).Msg("invalid cron spec")
	}
}
