package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead-response/internal/agents"
	"lead-response/internal/audit"
	"lead-response/internal/auth"
	"lead-response/internal/billing"
	"lead-response/internal/calls"
	"lead-response/internal/config"
	"lead-response/internal/httpapi"
	"lead-response/internal/identity"
	"lead-response/internal/leads"
	"lead-response/internal/reporting"
	"lead-response/internal/telephony"
	"lead-response/internal/usage"
	"lead-response/internal/webhooks"
	"lead-response/migrations"
	"lead-response/pkg/errreport"
	"lead-response/pkg/logger"
	"lead-response/pkg/metrics"
	"lead-response/pkg/phone"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	callSlotTTL        = time.Hour
	limiterSweepPeriod = 5 * time.Minute
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env not loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)
	for _, w := range cfg.Warnings() {
		if cfg.IsProduction() {
			log.Error("config warning", "detail", w)
		} else {
			log.Warn("config warning", "detail", w)
		}
	}

	if on, err := errreport.Init(cfg.Sentry.DSN, cfg.App.Env); err != nil {
		log.Error("sentry init failed", "err", err)
	} else if on {
		log.Info("error reporting enabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := migrations.Apply(rootCtx, db, nil); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema applied")
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	loc := cfg.Usage.Location

	callRepo := calls.NewSQLRepo(db)
	leadRepo := leads.NewSQLRepo(db)
	agentRepo := agents.NewSQLRepo(db)
	usageRepo := usage.NewSQLRepo(db)
	orgs := billing.NewSQLOrganizations(db)
	auditSvc := audit.NewService(audit.NewSQLRepo(db))

	leadSvc := leads.NewService(leadRepo, cfg.Phone.DefaultRegion)
	slots := billing.NewCallSlots(rdb, callSlotTTL)
	ingestor := webhooks.NewIngestor(
		identity.NewResolver(agentRepo, leadRepo, phone.NewMatcher(cfg.Phone.MatchStrategy, cfg.Phone.DefaultRegion)),
		calls.NewRecorder(callRepo),
		usage.NewAccumulator(usageRepo, usage.NewRedisClaims(rdb), loc),
		leadSvc,
		m,
	).WithSlots(slots)

	limiter := billing.NewLimiter(orgs, usageRepo, loc)
	aggregator := usage.NewAggregator(callRepo, usageRepo, loc)

	var providers []telephony.Provider
	if cfg.Retell.APIKey != "" {
		providers = append(providers, telephony.NewRetellProvider(cfg.Retell.BaseURL, cfg.Retell.APIKey, nil))
	}
	if cfg.Vapi.APIKey != "" {
		providers = append(providers, telephony.NewVapiProvider(cfg.Vapi.BaseURL, cfg.Vapi.APIKey, nil))
	}

	sched := usage.NewScheduler(aggregator, loc, log)
	sched.OnRun = func(sum usage.Summary, err error) {
		m.RecordReconciliation(err)
		if err != nil {
			errreport.Capture(err, map[string]string{"job": "usage_reconcile"})
			return
		}
		if err := auditSvc.LogUsageReconciled(context.Background(), "", "", sum); err != nil {
			log.Warn("audit usage reconciliation failed", "err", err)
		}
	}
	if err := sched.Schedule(cfg.Usage.AggregateCron); err != nil {
		log.Error("usage schedule invalid", "cron", cfg.Usage.AggregateCron, "err", err)
		os.Exit(1)
	}
	sched.Start()

	initiateLimit := utils.NewKeyedLimiter(cfg.Initiate.RatePerMinute, cfg.Initiate.Burst)
	go sweepLimiter(rootCtx, initiateLimit)

	// Gin router
	r := gin.New()
	r.Use(errreport.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, routeDeps{
		auth: authManager,
		handlers: httpapi.Handlers{
			Leads:         leadRepo,
			Agents:        agentRepo,
			Calls:         callRepo,
			Providers:     telephony.NewRegistry(providers...),
			Slots:         slots,
			Allowance:     limiter,
			Reports:       reporting.NewService(callRepo, usageRepo),
			Aggregator:    aggregator,
			Audit:         auditSvc,
			Metrics:       m,
			Location:      loc,
			DefaultRegion: cfg.Phone.DefaultRegion,
		},
		health: httpapi.Health{DB: db, Redis: rdb},
		providers: webhooks.ProviderHandler{
			Ingestor:     ingestor,
			RetellSecret: cfg.Retell.WebhookSecret,
			VapiSecret:   cfg.Vapi.WebhookSecret,
			Metrics:      m,
		},
		automation:      webhooks.NewAutomationHandler(leadSvc, callRepo, ingestor, m),
		stripe:          billing.NewStripeWebhook(cfg.Stripe.WebhookSecret, billing.NewPriceMap(cfg.Stripe), orgs, auditSvc),
		limiter:         limiter,
		initiateLimit:   initiateLimit,
		automationToken: cfg.Automation.Token,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	sched.Stop(shutdownCtx)

	errreport.Flush(2 * time.Second)
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// sweepLimiter drops idle per-organization buckets so the limiter does not grow unbounded.
func sweepLimiter(ctx context.Context, l *utils.KeyedLimiter) {
	t := time.NewTicker(limiterSweepPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
