package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/inbox-platform/cmd/mainconfig"
	appconfig "github.com/clinicdesk/inbox-platform/internal/config"
	"github.com/clinicdesk/inbox-platform/internal/conversation"
	"github.com/clinicdesk/inbox-platform/internal/followup"
	"github.com/clinicdesk/inbox-platform/internal/notify"
	"github.com/clinicdesk/inbox-platform/internal/observability"
	observemetrics "github.com/clinicdesk/inbox-platform/internal/observability/metrics"
	"github.com/clinicdesk/inbox-platform/internal/sla"
	"github.com/clinicdesk/inbox-platform/internal/tenantsettings"
	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting SLA worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := sla.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SLAQueueURL)

	telemetry := observability.NewTelemetry(logger.Component("telemetry"))
	slaMetrics := observemetrics.NewSLAMetrics(telemetry.Registry())

	conversationStore := conversation.NewStore(pool)
	slaStore := sla.NewStore(pool)

	engine := sla.NewEngine(sla.EngineConfig{
		Store:         slaStore,
		Resolver:      sla.NewResolver(slaStore),
		Conversations: conversationStore,
		Metrics:       slaMetrics,
		Logger:        logger.Component("sla"),
	})

	// Email sender preference: SendGrid when an API key is configured,
	// otherwise SES, otherwise a log-only stub.
	var sender notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger.Component("email"))
	} else if cfg.SESFromEmail != "" {
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger.Component("email"))
	} else {
		logger.Warn("no email provider configured; escalations are logged only")
		sender = notify.NewStubEmailSender(logger.Component("email"))
	}

	notifier := notify.NewService(notify.ServiceConfig{
		Email:       sender,
		Directory:   notify.StaticDirectory{Address: cfg.EscalationEmail},
		Redis:       redisClient,
		Logger:      logger.Component("notify"),
		Suppression: cfg.AlertSuppressionSpan,
	})

	worker := sla.NewWorker(engine, queue, logger.Component("sla-worker"),
		sla.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)

	sweeper := sla.NewSweeper(sla.SweeperConfig{
		Engine:    engine,
		Store:     slaStore,
		Notifier:  notifier,
		Metrics:   slaMetrics,
		Logger:    logger.Component("sla-sweep"),
		BatchSize: cfg.SweepBatchSize,
	})
	telemetry.AddRunner(func(runCtx context.Context) {
		sweeper.Run(runCtx, cfg.SweepInterval)
	})

	settingsStore := tenantsettings.NewStore(redisClient)
	followUpSweeper := followup.NewSweeper(followup.SweeperConfig{
		Store:     conversationStore,
		Evaluator: followup.NewEvaluator(settingsStore),
		Notifier:  notifier,
		Logger:    logger.Component("followup-sweep"),
		MinWindow: tenantsettings.MinFollowUpMinutes * time.Minute,
		BatchSize: cfg.SweepBatchSize,
	})
	telemetry.AddRunner(func(runCtx context.Context) {
		followUpSweeper.Run(runCtx, cfg.FollowUpInterval)
	})
	if err := telemetry.Start(ctx); err != nil {
		logger.Error("failed to start telemetry", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down SLA worker...")
	cancel()
	telemetry.Stop()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("SLA worker stopped")
	case <-doneCtx.Done():
		logger.Error("SLA worker shutdown timed out", "error", doneCtx.Err())
	}
}
