package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/gate"
	"github.com/fixora/condoguard/application/security/ratelimit"
	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/application/usecase"
	"github.com/fixora/condoguard/infrastructure/adapter/memory"
	natsadapter "github.com/fixora/condoguard/infrastructure/adapter/nats"
	"github.com/fixora/condoguard/infrastructure/adapter/postgres"
	redisadapter "github.com/fixora/condoguard/infrastructure/adapter/redis"
	"github.com/fixora/condoguard/infrastructure/config"
	httpserver "github.com/fixora/condoguard/infrastructure/http"
	"github.com/fixora/condoguard/infrastructure/http/middleware"
	"github.com/fixora/condoguard/infrastructure/service/jwt"
	"github.com/fixora/condoguard/infrastructure/service/logger"
	"github.com/fixora/condoguard/infrastructure/service/metrics"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logCfg := logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName,
	}
	baseLogger := logger.NewLogrus(logCfg)
	structuredLogger := logger.FromLogrus(baseLogger, cfg.ServiceName)
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env": cfg.Environment,
	})

	fallback := logger.NewFallbackLog(structuredLogger, cfg.AuditFallbackSize)

	var pipelineMetrics outbound.PipelineMetrics = outbound.NoopMetrics{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		pipelineMetrics = prom
		metricsHandler = prom.Handler()
	}

	// Audit store: PostgreSQL when configured, in-memory otherwise
	var (
		auditRepo outbound.AuditLogRepository
		db        *sqlx.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to database", err, nil)
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		repo := postgres.NewAuditLogRepository(db)
		if cfg.AuditAutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				structuredLogger.Error(ctx, "Failed to migrate audit table", err, nil)
				log.Fatalf("Failed to migrate audit table: %v", err)
			}
		}
		auditRepo = repo
		structuredLogger.Info(ctx, "Audit store: PostgreSQL", nil)
	} else {
		auditRepo = memory.NewAuditLogRepository()
		structuredLogger.Warn(ctx, "DATABASE_URL not set, audit entries are kept in memory only", nil)
	}

	// Optional NATS mirror of every persisted entry
	var publisher *natsadapter.AuditPublisher
	if cfg.NATSURL != "" {
		publisher, err = natsadapter.Connect(cfg.NATSURL, cfg.NATSAuditSubject, baseLogger)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to NATS, audit mirror disabled", err, map[string]interface{}{
				"nats_url": cfg.NATSURL,
			})
			publisher = nil
		}
	}
	var auditPublisher outbound.AuditPublisher
	if publisher != nil {
		auditPublisher = publisher
	}

	dispatcher := usecase.NewAuditDispatcher(auditRepo, auditPublisher, fallback, pipelineMetrics, usecase.DispatcherConfig{
		QueueSize:    cfg.AuditQueueSize,
		Workers:      cfg.AuditWorkers,
		Overflow:     cfg.AuditOverflowPolicy,
		WriteTimeout: cfg.AuditWriteTimeout,
	})
	auditService := usecase.NewAuditUsecase(auditRepo, dispatcher, fallback)

	// Rate limiting (memory or Redis counters)
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		var store outbound.CounterStore
		switch cfg.RateLimitStore {
		case config.RateLimitStoreRedis:
			client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
			if err != nil {
				structuredLogger.Error(ctx, "Failed to connect to Redis", err, nil)
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
			defer client.Close()
			store = redisadapter.NewCounterStore(client, baseLogger)
		default:
			mem := memory.NewCounterStore()
			go mem.CleanupLoop(ctx, time.Minute)
			store = mem
		}

		limiter, err = ratelimit.NewLimiter(store, auditService, cfg.RateLimitClasses, cfg.RateLimitRules)
		if err != nil {
			log.Fatalf("Failed to initialize rate limiter: %v", err)
		}
		limiter.SetMetrics(pipelineMetrics)
		limiter.SetErrorHandler(func(ctx context.Context, err error, fields map[string]interface{}) {
			structuredLogger.Error(ctx, "Rate limit store unavailable, allowing request", err, fields)
		})
		structuredLogger.Info(ctx, "Rate limiting enabled", map[string]interface{}{
			"store": cfg.RateLimitStore,
		})
	}

	tokenService, err := jwt.NewJWTService(cfg)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, nil)
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	detector := threat.NewDetector()
	handler := httpserver.NewRouter(cfg, httpserver.Dependencies{
		Audit:     auditService,
		Auth:      middleware.NewAuthMiddleware(tokenService, auditService, cfg.TrustProxyHeaders),
		Security:  middleware.NewSecurityMiddleware(structuredLogger, pipelineMetrics, cfg.MaxBodyBytes, cfg.TrustProxyHeaders),
		Inspector: middleware.NewInspector(detector, auditService, fallback, cfg.SlowRequestThreshold, cfg.TrustProxyHeaders),
		Gate:      gate.New(detector, auditService, pipelineMetrics),
		Limiter:   limiter,
		Metrics:   metricsHandler,
		Health: func() map[string]interface{} {
			return map[string]interface{}{
				"audit":         dispatcher.Stats(),
				"auditFallback": fallback.Total(),
			}
		},
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"addr": cfg.Addr(),
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"addr": cfg.Addr(),
			})
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}

	// Audit entries queued by in-flight requests are flushed before the
	// mirror and the store go away.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Audit queue not fully drained", err, map[string]interface{}{
			"stats": dispatcher.Stats(),
		})
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			structuredLogger.Error(shutdownCtx, "Failed to drain NATS connection", err, nil)
		}
	}
	stop()
	structuredLogger.Info(context.Background(), "Server exited", nil)
}
