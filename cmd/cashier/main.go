// Command cashier serves the gateway webhook endpoint, keeps the plan catalog
// in sync, and exposes health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/cashier/pkg/config"
	"github.com/dmitrymomot/cashier/pkg/httpserver"
	"github.com/dmitrymomot/cashier/pkg/logger"
	"github.com/dmitrymomot/cashier/pkg/pg"
	"github.com/dmitrymomot/cashier/pkg/redis"
	"github.com/dmitrymomot/cashier/pkg/requestid"
	"github.com/dmitrymomot/cashier/pkg/subscription"
	"github.com/dmitrymomot/cashier/pkg/subscription/pgstore"
)

// eventRetention bounds how long applied webhook event IDs are kept in Postgres.
const eventRetention = 30 * 24 * time.Hour

type appConfig struct {
	Cashier subscription.Config
	Stripe  subscription.StripeConfig
	PG      pg.Config
	Redis   redis.Config
	HTTP    httpserver.Config
	Log     logger.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("cashier stopped", logger.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	err := errors.Join(
		config.Load(&cfg.Cashier),
		config.Load(&cfg.Stripe),
		config.Load(&cfg.PG),
		config.Load(&cfg.Redis),
		config.Load(&cfg.HTTP),
		config.Load(&cfg.Log),
	)
	return cfg, err
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithConfig(cfg.Log),
		logger.WithService("cashier", ""),
		logger.WithContextExtractors(requestid.LogRequestID, subscription.LogEventID),
	)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
		return err
	}

	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)}

	pgLedger := pgstore.NewEventLedger(pool)
	var (
		locker subscription.Locker      = subscription.NewMemoryLocker()
		ledger subscription.EventLedger = pgLedger
	)
	if cfg.Redis.ConnectionURL != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		locker = redis.NewLocker(rdb,
			redis.WithLockPrefix(cfg.Redis.KeyPrefix+"lock:"),
			redis.WithLockTTL(cfg.Redis.LockTTL),
		)
		ledger = redis.NewEventLedger(rdb, cfg.Redis.KeyPrefix, cfg.Redis.EventTTL)
		if cfg.Redis.LockTTL < cfg.Stripe.MaxCallDuration() {
			log.WarnContext(ctx, "lock TTL is shorter than a retried Stripe call, relying on renewal",
				slog.Duration("lock_ttl", cfg.Redis.LockTTL),
				slog.Duration("max_call", cfg.Stripe.MaxCallDuration()),
			)
		}
		checks["redis"] = redis.Healthcheck(rdb)
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, locks are process-local")
		go pruneEvents(ctx, log, pgLedger)
	}

	gateway, err := subscription.NewStripeGateway(cfg.Stripe, log.With(logger.Component("stripe")))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := subscription.NewService(gateway, pgstore.New(pool),
		subscription.WithLocker(locker),
		subscription.WithLogger(log.With(logger.Component("subscription"))),
		subscription.WithMetrics(reg),
		subscription.WithDefaultCurrency(cfg.Cashier.Currency),
	)

	if cfg.Cashier.PlansFile != "" {
		defs, err := subscription.LoadCatalogFile(cfg.Cashier.PlansFile)
		if err != nil {
			return err
		}
		plans, err := svc.SyncCatalog(ctx, defs)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "plan catalog synced", slog.Int("plans", len(plans)))
	}

	if cfg.Cashier.TestMode() {
		log.WarnContext(ctx, "webhook events are trusted without gateway verification")
	}
	rec := subscription.NewReconciler(svc, gateway,
		subscription.WithTestMode(cfg.Cashier.TestMode()),
		subscription.WithEventLedger(ledger),
		subscription.WithReconcilerLogger(log.With(logger.Component("webhook"))),
		subscription.WithReconcilerMetrics(reg),
	)

	webhookOpts := []subscription.WebhookHandlerOption{subscription.WithWebhookLogger(log)}
	if cfg.Stripe.WebhookSecret != "" {
		webhookOpts = append(webhookOpts, subscription.WithSignatureVerifier(gateway.VerifySignature))
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Mount("/webhooks/stripe", subscription.WebhookRoutes(rec, webhookOpts...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/health/live", httpserver.HealthCheckHandler(log, 0, nil))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, 5*time.Second, checks))

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

func pruneEvents(ctx context.Context, log *slog.Logger, ledger *pgstore.EventLedger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.Prune(ctx, time.Now().Add(-eventRetention))
			if err != nil {
				log.ErrorContext(ctx, "failed to prune webhook events", logger.Error(err))
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "pruned webhook events", slog.Int64("count", n))
			}
		}
	}
}
