// Package main provides the outbox relay service entry point. It drains the
// transactional outbox to Kafka so appointment events reach the notification
// and invoicing collaborators exactly as committed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/config"
	"github.com/clinware/go-sched/internal/infrastructure/kafka"
	"github.com/clinware/go-sched/internal/infrastructure/postgres"
	"github.com/clinware/go-sched/internal/observability/metrics"
	"github.com/clinware/go-sched/internal/observability/tracing"
)

const (
	deadLetterSweepInterval = time.Minute
	pendingGaugeInterval    = 15 * time.Second
	cleanupInterval         = time.Hour
	cleanupRetention        = 72 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "outbox-relay",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Warn("tracing init failed, continuing without", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Make sure the topics exist before the first publish.
	admin, err := kafka.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("kafka admin creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Warn("topic creation failed, continuing", zap.Error(err))
	}
	admin.Close()

	producerCfg := kafka.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := kafka.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to kafka", zap.Strings("brokers", cfg.KafkaBrokers))

	m := metrics.New()

	outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), logger)
	outbox.Start()
	logger.Info("outbox relay started")

	// Housekeeping: dead-letter sweep, pending gauge, processed cleanup.
	hkCtx, hkCancel := context.WithCancel(ctx)
	go housekeeping(hkCtx, outbox, m, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	hkCancel()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

func housekeeping(ctx context.Context, outbox *postgres.Outbox, m *metrics.Metrics, logger *zap.Logger) {
	sweep := time.NewTicker(deadLetterSweepInterval)
	gauge := time.NewTicker(pendingGaugeInterval)
	cleanup := time.NewTicker(cleanupInterval)
	defer sweep.Stop()
	defer gauge.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sweep.C:
			moved, err := outbox.MoveToDeadLetter(ctx, kafka.TopicDeadLetter)
			if err != nil {
				logger.Error("dead letter sweep failed", zap.Error(err))
			} else if moved > 0 {
				logger.Warn("entries moved to dead letter", zap.Int64("count", moved))
			}

		case <-gauge.C:
			pending, err := outbox.PendingCount(ctx)
			if err != nil {
				logger.Error("pending count failed", zap.Error(err))
				continue
			}
			m.OutboxPending.Set(float64(pending))

		case <-cleanup.C:
			deleted, err := outbox.CleanupProcessed(ctx, cleanupRetention)
			if err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("processed outbox entries cleaned", zap.Int64("deleted", deleted))
			}
		}
	}
}
