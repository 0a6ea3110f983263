// Package main seeds development data: providers, patients, a price catalog
// and weekly schedule templates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/config"
)

var specialties = []string{
	"cardiology", "dermatology", "pediatrics", "orthopedics",
	"general_practice", "endocrinology", "neurology",
}

func main() {
	providers := flag.Int("providers", 10, "number of providers to create")
	patients := flag.Int("patients", 50, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := seedPriceCatalog(ctx, pool); err != nil {
		logger.Fatal("seed price catalog failed", zap.Error(err))
	}
	logger.Info("price catalog seeded", zap.Int("specialties", len(specialties)))

	providerIDs, err := seedProviders(ctx, pool, *providers)
	if err != nil {
		logger.Fatal("seed providers failed", zap.Error(err))
	}
	logger.Info("providers seeded", zap.Int("count", len(providerIDs)))

	templates, err := seedTemplates(ctx, pool, providerIDs)
	if err != nil {
		logger.Fatal("seed templates failed", zap.Error(err))
	}
	logger.Info("schedule templates seeded", zap.Int("count", templates))

	if err := seedPatients(ctx, pool, *patients); err != nil {
		logger.Fatal("seed patients failed", zap.Error(err))
	}
	logger.Info("patients seeded", zap.Int("count", *patients))
}

func seedPriceCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	for _, sp := range specialties {
		cents := int64(gofakeit.Number(150, 600)) * 100
		_, err := pool.Exec(ctx, `
			INSERT INTO price_catalog (specialty, price_cents)
			VALUES ($1, $2)
			ON CONFLICT (specialty) DO NOTHING
		`, sp, cents)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, n int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		name := fmt.Sprintf("Dr. %s %s", gofakeit.FirstName(), gofakeit.LastName())
		room := fmt.Sprintf("%d%s", gofakeit.Number(1, 40), gofakeit.RandomString([]string{"A", "B", "C"}))
		specialty := gofakeit.RandomString(specialties)

		_, err := pool.Exec(ctx, `
			INSERT INTO providers (id, name, room, specialty)
			VALUES ($1, $2, $3, $4)
		`, id, name, room, specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedTemplates(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) (int, error) {
	windows := [][2]string{
		{"09:00", "12:00"},
		{"13:00", "16:00"},
		{"17:00", "20:00"},
	}

	// Mixed spellings, like the upstream feeds the readers normalize.
	labels := map[time.Weekday][]string{
		time.Monday:    {"Monday", "mon"},
		time.Tuesday:   {"Tuesday", "Tues."},
		time.Wednesday: {"Wednesday", "weds"},
		time.Thursday:  {"Thursday", "thu"},
		time.Friday:    {"Friday", "fri"},
	}

	count := 0
	for _, pid := range providerIDs {
		// Two to four recurring weekly windows per provider.
		n := gofakeit.Number(2, 4)
		used := make(map[string]bool)
		for i := 0; i < n; i++ {
			weekday := time.Weekday(gofakeit.Number(1, 5)) // weekdays only
			window := windows[gofakeit.Number(0, len(windows)-1)]
			key := fmt.Sprintf("%d-%s", weekday, window[0])
			if used[key] {
				continue
			}
			used[key] = true

			_, err := pool.Exec(ctx, `
				INSERT INTO schedule_templates (id, provider_id, weekday, start_time, end_time, capacity, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), pid, gofakeit.RandomString(labels[weekday]), window[0], window[1], gofakeit.Number(3, 12))
			if err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, n int) error {
	for i := 0; i < n; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, phone)
			VALUES ($1, $2, $3)
		`, uuid.New(), gofakeit.Name(), gofakeit.Phone())
		if err != nil {
			return err
		}
	}
	return nil
}
