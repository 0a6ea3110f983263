// Package main provides the booking API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/api/handlers"
	"github.com/clinware/go-sched/internal/api/middleware"
	"github.com/clinware/go-sched/internal/config"
	"github.com/clinware/go-sched/internal/directory"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/booking"
	"github.com/clinware/go-sched/internal/domain/encounter"
	"github.com/clinware/go-sched/internal/domain/schedule"
	"github.com/clinware/go-sched/internal/infrastructure/redislock"
	"github.com/clinware/go-sched/internal/observability/metrics"
	"github.com/clinware/go-sched/internal/observability/tracing"
	"github.com/clinware/go-sched/pkg/circuitbreaker"
	"github.com/clinware/go-sched/pkg/idempotency"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Env == "dev" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	ctx := context.Background()

	// Tracing
	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "booking-api",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Warn("tracing init failed, continuing without", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Slot locking. Redis serializes booking across instances; a single-node
	// deployment without Redis falls back to in-process locks, with the
	// store's atomic capacity check still backing it up.
	var locker redislock.Locker
	if rdb, err := redislock.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword); err != nil {
		logger.Warn("redis unavailable, using in-process slot locks", zap.Error(err))
		locker = redislock.NewMemoryLocker()
	} else {
		defer rdb.Close()
		locker = redislock.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal("invalid clinic time zone", zap.String("tz", cfg.ClinicTimezone), zap.Error(err))
	}

	m := metrics.New()
	breakers := circuitbreaker.NewManager(logger)

	// Collaborators
	dir := directory.NewService(directory.NewPgLookups(pool), breakers, cfg.DefaultPriceCents, logger)

	// Domain services
	schedRepo := schedule.NewPgRepository(pool)
	resolver := schedule.NewResolver(schedRepo, loc)

	apptRepo := appointment.NewPgRepository(pool, logger)
	apptSvc := appointment.NewService(apptRepo, logger)

	coordinator := booking.NewCoordinator(schedRepo, apptRepo, dir, locker, loc, logger)
	guard := booking.NewCapacityGuard(apptRepo)

	encRepo := encounter.NewPgRepository(pool, logger)
	workflow := encounter.NewWorkflow(apptRepo, encRepo, cfg.RequireResultsBeforeFinalize, logger)

	inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	// Handlers
	availabilityHandler := handlers.NewAvailabilityHandler(resolver, guard, logger)
	apptHandler := handlers.NewAppointmentHandler(coordinator, apptSvc, inbox, m, logger)
	patientHandler := handlers.NewPatientHandler(apptSvc, logger)
	encHandler := handlers.NewEncounterHandler(workflow, m, logger)

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("booking-api"))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorRole)
		r.Mount("/providers", availabilityHandler.Routes())
		r.Mount("/patients", patientHandler.Routes())
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", apptHandler.Book)
			r.Get("/{id}", apptHandler.Get)
			r.Post("/{id}/confirm", apptHandler.Confirm)
			r.Post("/{id}/cancel", apptHandler.Cancel)
			r.Post("/{id}/tests", encHandler.OrderTests)
			r.Get("/{id}/tests", encHandler.ListTests)
			r.Post("/{id}/results", encHandler.EnterResults)
			r.Post("/{id}/finalize", encHandler.Finalize)
			r.Get("/{id}/encounter", encHandler.GetEncounter)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting booking API",
		zap.String("port", cfg.HTTPPort),
		zap.String("clinic_tz", cfg.ClinicTimezone))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"booking-api"}`)
}
