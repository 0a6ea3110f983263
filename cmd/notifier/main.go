// Package main provides the notifier service entry point. It consumes
// appointment events, renders patient-facing messages and hands them to the
// delivery gateway, with a worker pool bounding concurrency and a circuit
// breaker shielding the gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/config"
	"github.com/clinware/go-sched/internal/infrastructure/kafka"
	"github.com/clinware/go-sched/internal/observability/metrics"
	"github.com/clinware/go-sched/internal/observability/tracing"
	"github.com/clinware/go-sched/pkg/circuitbreaker"
	"github.com/clinware/go-sched/pkg/workerpool"
)

const gatewayBreaker = "notification-gateway"

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
		ServiceName:  "notifier",
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

	m := metrics.New()
	breakers := circuitbreaker.NewManager(logger)

	poolCfg := workerpool.DefaultConfig()
	workerPool, err := workerpool.New(poolCfg, func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		return deliverNotification(ctx, task, pool, breakers, logger)
	}, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}

	workerPool.Start()
	defer workerPool.Stop()

	consumerCfg := kafka.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.Topics = []string{kafka.TopicAppointmentEvents}

	consumer, err := kafka.NewConsumer(consumerCfg, func(ctx context.Context, msg *kafka.ConsumedMessage) error {
		m.KafkaMessagesConsumed.Inc()
		return workerPool.Submit(&workerpool.Task{
			ID:      fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
			Payload: msg.Value,
			Context: ctx,
		})
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("notifier started", zap.Strings("brokers", cfg.KafkaBrokers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	consumer.Stop()
	logger.Info("notifier stopped")
}

// appointmentEvent is the shape of records on the appointment events topic.
type appointmentEvent struct {
	Event         string `json:"event"`
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	VisitDate     string `json:"visit_date"`
	ContactName   string `json:"contact_name"`
	ContactPhone  string `json:"contact_phone"`
}

func deliverNotification(ctx context.Context, task *workerpool.Task, pool *pgxpool.Pool, breakers *circuitbreaker.Manager, logger *zap.Logger) *workerpool.Result {
	raw, ok := task.Payload.([]byte)
	if !ok {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: fmt.Errorf("unexpected payload type %T", task.Payload)}
	}

	var ev appointmentEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	message := renderMessage(&ev)
	if message == "" {
		// Event types without a patient-facing message are acknowledged as
		// delivered so they are not retried.
		return &workerpool.Result{TaskID: task.ID, Success: true}
	}

	cb, err := breakers.GetOrCreate(gatewayBreaker, circuitbreaker.DefaultConfig(gatewayBreaker))
	if err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	_, err = cb.Execute(ctx, func() (interface{}, error) {
		return nil, sendToGateway(ctx, pool, &ev, message)
	})
	if err != nil {
		logger.Error("notification delivery failed",
			zap.String("appointment_id", ev.AppointmentID),
			zap.String("event", ev.Event),
			zap.Error(err))
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	logger.Info("notification delivered",
		zap.String("appointment_id", ev.AppointmentID),
		zap.String("event", ev.Event))
	return &workerpool.Result{TaskID: task.ID, Success: true}
}

func renderMessage(ev *appointmentEvent) string {
	name := ev.ContactName
	if name == "" {
		name = "there"
	}
	switch ev.Event {
	case "appointment.booked":
		return fmt.Sprintf("Hi %s, your appointment on %s is booked and pending confirmation.", name, ev.VisitDate)
	case "appointment.confirmed":
		return fmt.Sprintf("Hi %s, your appointment on %s is confirmed.", name, ev.VisitDate)
	case "appointment.cancelled":
		return fmt.Sprintf("Hi %s, your appointment on %s has been cancelled.", name, ev.VisitDate)
	case "appointment.results_ready":
		return "Your test results are in. Your provider will review them with you."
	case "appointment.completed":
		return fmt.Sprintf("Thank you for your visit on %s. Your summary and invoice are on the way.", ev.VisitDate)
	default:
		return ""
	}
}

// sendToGateway queues the message in the delivery table the SMS gateway
// drains. Duplicate deliveries for the same appointment and event collapse
// onto the first row, keeping redelivered records harmless.
func sendToGateway(ctx context.Context, pool *pgxpool.Pool, ev *appointmentEvent, message string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, event_type, recipient_phone, message, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (appointment_id, event_type) DO NOTHING
	`, ev.AppointmentID, ev.Event, ev.ContactPhone, message)
	return err
}
