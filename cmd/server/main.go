// Command server runs the fund request approval API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	eventapp "github.com/erp/fundflow/internal/application/event"
	fundapp "github.com/erp/fundflow/internal/application/fundrequest"
	"github.com/erp/fundflow/internal/infrastructure/auth"
	"github.com/erp/fundflow/internal/infrastructure/cache"
	"github.com/erp/fundflow/internal/infrastructure/config"
	"github.com/erp/fundflow/internal/infrastructure/event"
	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/erp/fundflow/internal/infrastructure/persistence"
	"github.com/erp/fundflow/internal/infrastructure/storage"
	"github.com/erp/fundflow/internal/infrastructure/telemetry"
	"github.com/erp/fundflow/internal/interfaces/http/handler"
	"github.com/erp/fundflow/internal/interfaces/http/middleware"
	"github.com/erp/fundflow/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.InfoLevel)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.Enabled() {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting fundflow",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	var meter = meterProvider.Meter("fundflow")
	if !meterProvider.Enabled() {
		meter = nil
	}
	if err := telemetry.InstrumentDB(db.DB, meter, telemetry.DBConfig{
		Tracing:        tracerProvider.Enabled(),
		QueryVariables: !cfg.IsProduction(),
		DBName:         cfg.Database.DBName,
		Metrics:        meter != nil,
		SlowQuery:      cfg.Database.SlowThreshold,
	}, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}

	// Caches
	stores := cache.NewStores(ctx, cfg.Redis, log)

	// Repositories
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	serializer := event.NewFundRequestSerializer()
	requestRepo := persistence.NewGormFundRequestRepository(db.DB)
	if cfg.Outbox.Enabled {
		requestRepo.SetOutboxSaver(event.NewOutboxPublisher(serializer))
	}
	historyRepo := persistence.NewGormHistoryRepository(db.DB)
	stepRepo := cache.NewCachedWorkflowStepRepository(
		persistence.NewGormWorkflowStepRepository(db.DB), stores.Steps, log)
	numbers := persistence.NewGormRequestNumberGenerator(db.DB)

	// Services
	stepService := fundapp.NewStepService(stepRepo)
	fundService := fundapp.NewFundRequestService(requestRepo, historyRepo, stepService, numbers)
	fundService.SetRetryOnConflict(cfg.Workflow.RetryOnConflict)
	fundService.SetProofStorage(newProofStorage(ctx, &cfg.Storage, log))

	var workflowMetrics *telemetry.WorkflowMetrics
	if meter != nil {
		stats := persistence.NewGormWorkflowStats(db.DB)
		workflowMetrics, err = telemetry.NewWorkflowMetrics(telemetry.WorkflowMetricsConfig{
			Meter:          meter,
			Logger:         log,
			StatusProvider: stats,
		})
		if err != nil {
			log.Fatal("Failed to create workflow metrics", zap.Error(err))
		}
		workflowMetrics.StartPeriodicCollection(ctx, stats, cfg.Telemetry.MetricsInterval)
		fundService.SetWorkflowMetrics(workflowMetrics)
	}
	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	// Events: outbox -> NATS and the in-process bus
	bus := event.NewInMemoryEventBus(log)
	notifications := fundapp.NewWorkflowNotificationHandler(stepService, log).
		WithNotifier(fundapp.NewLogNotifier(log))
	bus.Subscribe(
		event.NewIdempotentHandler(notifications, stores.Idempotency, 24*time.Hour, log),
		notifications.EventTypes()...,
	)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	sink := event.FanoutPublisher{bus}
	var natsPublisher *event.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPublisher, err = event.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name, cfg.NATS.SubjectPrefix, serializer, log)
		if err != nil {
			log.Warn("NATS unavailable, events stay in process", zap.Error(err))
		} else {
			sink = event.FanoutPublisher{natsPublisher, bus}
		}
	}

	var outboxProcessor *event.OutboxProcessor
	if cfg.Outbox.Enabled {
		outboxProcessor = event.NewOutboxProcessor(outboxRepo, sink, serializer, event.OutboxProcessorConfig{
			BatchSize:        cfg.Outbox.BatchSize,
			PollInterval:     cfg.Outbox.PollInterval,
			CleanupRetention: cfg.Outbox.CleanupRetention,
		}, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	// HTTP
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", handler.HealthCheckFunc(db.Ping))
	if stores.Client != nil {
		systemHandler.AddCheck("redis", handler.HealthCheckFunc(func(ctx context.Context) error {
			return stores.Client.Ping(ctx).Err()
		}))
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitRequests > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go limiter.RunCleanup(ctx)
	}

	engine := router.NewEngine(router.EngineConfig{
		Logger:           log,
		JWTService:       auth.NewJWTService(cfg.JWT),
		ServiceName:      cfg.Telemetry.ServiceName,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		MaxBodySize:      cfg.HTTP.MaxUploadSize,
		DefaultLanguage:  language.Make(cfg.Workflow.DefaultLanguage),
		RateLimiter:      limiter,
		TracingEnabled:   tracerProvider.Enabled(),
		ProfilingEnabled: profiler.Enabled(),
		Meter:            meter,
		Handlers: router.Handlers{
			FundRequests:  handler.NewFundRequestHandler(fundService),
			WorkflowSteps: handler.NewWorkflowStepHandler(stepService),
			Outbox:        handler.NewOutboxHandler(outboxService),
			System:        systemHandler,
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Warn("Outbox processor stop failed", zap.Error(err))
		}
	}
	if natsPublisher != nil {
		if err := natsPublisher.Close(); err != nil {
			log.Warn("NATS close failed", zap.Error(err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus stop failed", zap.Error(err))
	}
	if workflowMetrics != nil {
		workflowMetrics.Stop()
	}
	closeAll(log,
		namedCloser{"cache", stores.Close},
		namedCloser{"database", db.Close},
		namedCloser{"profiler", profiler.Stop},
		namedCloser{"tracer", func() error { return tracerProvider.Shutdown(shutdownCtx) }},
		namedCloser{"meter", func() error { return meterProvider.Shutdown(shutdownCtx) }},
		namedCloser{"log export", func() error { return logProvider.Shutdown(shutdownCtx) }},
	)

	log.Info("Server exited gracefully")
}

// newProofStorage selects S3 when a bucket is configured and the in-memory stub otherwise
func newProofStorage(ctx context.Context, cfg *config.StorageConfig, log *zap.Logger) fundapp.ProofStorage {
	if cfg.Bucket == "" {
		log.Warn("No proof bucket configured, payment proofs are kept in memory")
		return storage.NewMemoryProofStorage()
	}
	s3Storage, err := storage.NewS3ProofStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize proof storage", zap.Error(err))
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		log.Warn("Proof bucket check failed", zap.String("bucket", s3Storage.Bucket()), zap.Error(err))
	}
	return s3Storage
}

type namedCloser struct {
	name  string
	close func() error
}

func closeAll(log *zap.Logger, closers ...namedCloser) {
	for _, c := range closers {
		if err := c.close(); err != nil {
			log.Warn("Shutdown step failed", zap.String("component", c.name), zap.Error(err))
		}
	}
}
