package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/inbox-platform/cmd/mainconfig"
	"github.com/clinicdesk/inbox-platform/internal/api/router"
	appconfig "github.com/clinicdesk/inbox-platform/internal/config"
	"github.com/clinicdesk/inbox-platform/internal/conversation"
	"github.com/clinicdesk/inbox-platform/internal/events"
	"github.com/clinicdesk/inbox-platform/internal/followup"
	"github.com/clinicdesk/inbox-platform/internal/http/handlers"
	"github.com/clinicdesk/inbox-platform/internal/observability"
	observemetrics "github.com/clinicdesk/inbox-platform/internal/observability/metrics"
	"github.com/clinicdesk/inbox-platform/internal/sla"
	"github.com/clinicdesk/inbox-platform/internal/tenancy"
	"github.com/clinicdesk/inbox-platform/internal/tenantsettings"
	"github.com/clinicdesk/inbox-platform/internal/webhook"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

func main() {
	// Best effort: local development reads .env, deployed environments set
	// real environment variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting inbox API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	// Recompute queue: SQS in deployed environments, in-memory for local
	// single-process runs. In memory mode the consumer runs inside this
	// process because no separate worker can reach the queue.
	var memoryQueue *sla.MemoryQueue
	var queuePublisher *sla.Publisher
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory SLA queue; jobs are lost on restart")
		memoryQueue = sla.NewMemoryQueue(1024)
		queuePublisher = sla.NewPublisher(memoryQueue)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := sla.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SLAQueueURL)
		queuePublisher = sla.NewPublisher(queue)
	}

	telemetry := observability.NewTelemetry(logger.Component("telemetry"))
	webhookMetrics := observemetrics.NewWebhookMetrics(telemetry.Registry())
	slaMetrics := observemetrics.NewSLAMetrics(telemetry.Registry())

	eventStore := events.NewStore(pool)
	conversationStore := conversation.NewStore(pool)
	slaStore := sla.NewStore(pool)
	settingsStore := tenantsettings.NewStore(redisClient)

	engine := sla.NewEngine(sla.EngineConfig{
		Store:         slaStore,
		Resolver:      sla.NewResolver(slaStore),
		Conversations: conversationStore,
		Metrics:       slaMetrics,
		Logger:        logger.Component("sla"),
	})

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open membership db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()
	guard := tenancy.NewGuard(tenancy.NewMembershipRepository(sqlDB), conversationStore)

	gateway := webhook.NewGateway(webhook.GatewayConfig{
		Verifier:    webhook.NewSignatureVerifier(cfg.MetaAppSecret),
		VerifyToken: cfg.WhatsAppVerifyToken,
		Store:       eventStore,
		Limiter:     webhook.NewTenantRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst),
		OnMessage: func(ctx context.Context, tenantID uuid.UUID, msg webhook.ParsedMessage) {
			snap, err := conversationStore.FindOpenByContactPhone(ctx, tenantID, msg.ContactPhone)
			if err != nil || snap == nil {
				return
			}
			job := sla.RecomputeJob{
				TenantID:       tenantID,
				ConversationID: snap.ID,
				Direction:      sla.DirectionInbound,
			}
			if err := queuePublisher.Enqueue(ctx, job); err != nil {
				logger.Error("failed to enqueue recompute job",
					"tenant_id", tenantID, "conversation_id", snap.ID, "error", err)
			}
		},
		Logger:  logger.Component("webhook"),
		Metrics: webhookMetrics,
	})

	if memoryQueue != nil {
		worker := sla.NewWorker(engine, memoryQueue, logger.Component("sla-worker"),
			sla.WithWorkerCount(cfg.WorkerCount))
		telemetry.AddRunner(func(runCtx context.Context) {
			worker.Start(runCtx)
			worker.Wait()
		})
		sweeper := sla.NewSweeper(sla.SweeperConfig{
			Engine:    engine,
			Store:     slaStore,
			Metrics:   slaMetrics,
			Logger:    logger.Component("sla-sweep"),
			BatchSize: cfg.SweepBatchSize,
		})
		telemetry.AddRunner(func(runCtx context.Context) {
			sweeper.Run(runCtx, cfg.SweepInterval)
		})
	}
	if err := telemetry.Start(ctx); err != nil {
		logger.Error("failed to start telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetry.Stop()

	conversationHandlers := handlers.NewConversationHandlers(
		engine,
		guard,
		conversationStore,
		followup.NewEvaluator(settingsStore),
		logger.Component("api"),
	)

	r := router.New(&router.Config{
		Logger:          logger,
		WebhookGateway:  gateway,
		Conversations:   conversationHandlers,
		AgentAuthSecret: cfg.AgentJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(telemetry.Registry(), promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
