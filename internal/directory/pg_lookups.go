package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLookups reads the collaborator-owned tables. This engine never writes
// them.
type PgLookups struct {
	pool *pgxpool.Pool
}

func NewPgLookups(pool *pgxpool.Pool) *PgLookups {
	return &PgLookups{pool: pool}
}

func (l *PgLookups) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := l.pool.QueryRow(ctx, `
		SELECT id, name, room, specialty
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Room, &p.Specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (l *PgLookups) GetPatient(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	var p PatientProfile
	err := l.pool.QueryRow(ctx, `
		SELECT id, name, phone
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (l *PgLookups) PriceForSpecialty(ctx context.Context, specialty string) (int64, error) {
	var cents int64
	err := l.pool.QueryRow(ctx, `
		SELECT price_cents
		FROM price_catalog
		WHERE specialty = $1
	`, specialty).Scan(&cents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoPrice
		}
		return 0, err
	}
	return cents, nil
}
