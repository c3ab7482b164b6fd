package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/accessmod/lead-marketplace/cmd/mainconfig"
	"github.com/accessmod/lead-marketplace/internal/api/router"
	"github.com/accessmod/lead-marketplace/internal/archive"
	"github.com/accessmod/lead-marketplace/internal/audit"
	appconfig "github.com/accessmod/lead-marketplace/internal/config"
	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/internal/events"
	"github.com/accessmod/lead-marketplace/internal/leads"
	"github.com/accessmod/lead-marketplace/internal/locking"
	"github.com/accessmod/lead-marketplace/internal/notify"
	"github.com/accessmod/lead-marketplace/internal/observability/metrics"
	"github.com/accessmod/lead-marketplace/internal/payments"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting lead marketplace API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	sqlDB, err := openSQLDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var aws *mainconfig.Clients
	if cfg.UseAWS() {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		clients := mainconfig.NewClients(awsCfg, cfg.AWSEndpointOverride)
		aws = &clients
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	leadMetrics := metrics.NewLeadMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	bus := events.NewInMemoryBus(logger)

	var (
		repo       leads.Repository      = leads.NewInMemoryRepository()
		directory  contractors.Directory = contractors.NewInMemoryDirectory(contractors.DemoContractors()...)
		homeowners notify.HomeownerStore = notify.NewAddressBook()
		auditor    *audit.Service
		deliverer  *events.Deliverer
		healthPing func(context.Context) error
	)
	if pool != nil {
		repo = leads.NewPostgresRepository(pool)
		healthPing = pool.Ping

		outbox := events.NewOutboxStore(pool)
		bus.Subscribe(events.AllEvents, outbox.Recorder())
		deliverer = events.NewDeliverer(outbox, outboxDelivery(cfg, aws, logger), logger).
			WithInterval(cfg.OutboxPollInterval)
	}
	if sqlDB != nil {
		pgDirectory := contractors.NewPostgresDirectory(sqlDB)
		if cfg.Env == "development" {
			seedContractors(ctx, pgDirectory, logger)
		}
		directory = pgDirectory
		homeowners = notify.NewPostgresHomeowners(sqlDB)
		auditor = audit.NewService(sqlDB)
		auditor.Subscribe(bus)
	}

	var performance contractors.PerformanceStore = contractors.NewInMemoryPerformanceStore()
	if aws != nil && cfg.PerformanceTable != "" {
		performance = contractors.NewDynamoPerformanceStore(aws.DynamoDB, cfg.PerformanceTable)
	}

	gateway, err := setupGateway(cfg, logger)
	if err != nil {
		return err
	}

	deps := leads.EngineDeps{
		Repo:        repo,
		Directory:   directory,
		Gateway:     gateway,
		Bus:         bus,
		Performance: performance,
		Homeowners:  homeowners,
		Logger:      logger,
		LeadTTL:     cfg.LeadTTL,
		LockWait:    cfg.LockWait,
	}
	if redisClient != nil {
		deps.Locker = locking.NewRedisLocker(redisClient, cfg.LockTTL, logger)
		deps.Velocity = payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
			MaxPurchasesPerContractor: cfg.PurchaseVelocityMax,
			PurchaseWindow:            cfg.PurchaseVelocityWindow,
			Enabled:                   cfg.PurchaseVelocityMax > 0,
		}, logger)
	}
	engine := leads.NewEngine(deps)

	fx := leads.Effects{
		Notifier:    notify.NewService(setupEmail(cfg, aws, logger), homeowners, directory, logger),
		Metrics:     leadMetrics,
		Performance: performance,
		Repo:        repo,
		Logger:      logger,
	}
	if aws != nil && cfg.ArchiveBucket != "" {
		fx.Archiver = archive.NewStore(aws.S3, cfg.ArchiveBucket, logger)
	}
	leads.RegisterEffects(bus, fx)

	routerCfg := &router.Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(engine, logger),
		PaymentMethods:     payments.NewMethodsHandler(gateway, directory, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequestObserver:    httpMetrics,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		HealthCheck:        healthPing,
	}
	if auditor != nil {
		routerCfg.AuditHandler = audit.NewHandler(auditor, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(name string, fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			logger.Info("background worker started", "worker", name)
			fn(workerCtx)
		}()
	}
	startWorker("expiry-sweeper", leads.NewSweeper(engine, repo, logger).
		WithInterval(cfg.ExpirySweepInterval).
		WithBatchSize(cfg.ExpirySweepBatch).Start)
	if deliverer != nil {
		startWorker("outbox-deliverer", deliverer.Start)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		cancelWorkers()
		workers.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancelWorkers()
	workers.Wait()
	if err := bus.Drain(shutdownCtx); err != nil {
		logger.Warn("event handlers still running at shutdown", "error", err)
	}
	return nil
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		logger.Warn("DATABASE_URL not set; using in-memory lead storage")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// seedContractors loads the demo contractors so a fresh development database
// has someone to match leads against.
func seedContractors(ctx context.Context, dir *contractors.PostgresDirectory, logger *logging.Logger) {
	for _, c := range contractors.DemoContractors() {
		if err := dir.Upsert(ctx, c); err != nil {
			logger.Warn("failed to seed contractor", "error", err, "contractor_id", c.ID)
			return
		}
	}
}

func openSQLDB(url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database/sql handle: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; using process-local locks and no purchase velocity limit")
		return nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to ping redis", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}
	return client
}

func setupGateway(cfg *appconfig.Config, logger *logging.Logger) (payments.Gateway, error) {
	if cfg.StripeSecretKey != "" {
		return payments.NewStripeGateway(cfg.StripeSecretKey, logger).
			WithBaseURL(cfg.StripeBaseURL).
			WithDryRun(cfg.StripeDryRun), nil
	}
	if cfg.AllowFakePayments {
		logger.Warn("STRIPE_SECRET_KEY not set; using fake payment gateway")
		return payments.NewFakeGateway(logger), nil
	}
	return nil, errors.New("STRIPE_SECRET_KEY is required (or set ALLOW_FAKE_PAYMENTS=true for development)")
}

func setupEmail(cfg *appconfig.Config, aws *mainconfig.Clients, logger *logging.Logger) notify.EmailSender {
	useSES := cfg.EmailProvider == "ses" || (cfg.EmailProvider == "auto" && cfg.SendGridAPIKey == "" && cfg.SESFromEmail != "")
	if useSES && aws != nil {
		if sender := notify.NewSESSender(aws.SES, notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SendGridFromName}, logger); sender != nil {
			return sender
		}
	}
	if cfg.EmailProvider != "ses" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("no email provider configured; emails will be logged only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}

func outboxDelivery(cfg *appconfig.Config, aws *mainconfig.Clients, logger *logging.Logger) events.DeliveryHandler {
	if aws != nil && cfg.EventsQueueURL != "" {
		return events.NewSQSPublisher(aws.SQS, cfg.EventsQueueURL)
	}
	return events.LogPublisher{Log: logger.Debug}
}
