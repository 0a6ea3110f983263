package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/infrastructure/kafka"
	"github.com/clinware/go-sched/internal/infrastructure/postgres"
)

// PgRepository is the PostgreSQL encounter store. The results-ready event is
// written to the outbox in the same transaction that completes the last open
// test order.
type PgRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgRepository{pool: pool, logger: logger}
}

const encounterColumns = `id, appointment_id, diagnosis, treatment, notes, finalized_at, created_at, updated_at`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	var diagnosis *string
	err := row.Scan(&e.ID, &e.AppointmentID, &diagnosis, &e.Treatment, &e.Notes, &e.FinalizedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEncounterNotFound
		}
		return nil, err
	}
	if diagnosis != nil {
		e.Diagnosis = *diagnosis
	}
	return &e, nil
}

func (r *PgRepository) EnsureEncounter(ctx context.Context, appointmentID uuid.UUID, note string) (*Encounter, error) {
	// On conflict the existing row wins; blank notes are the one exception,
	// filled in so a retried open does not lose the submitted note.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO encounters (id, appointment_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET notes = CASE WHEN encounters.notes = '' THEN excluded.notes ELSE encounters.notes END,
		    updated_at = now()
		RETURNING `+encounterColumns+`
	`, uuid.New(), appointmentID, note)
	return scanEncounter(row)
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Encounter, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+encounterColumns+`
		FROM encounters
		WHERE appointment_id = $1
	`, appointmentID)
	return scanEncounter(row)
}

func (r *PgRepository) CreateTestOrders(ctx context.Context, appointmentID uuid.UUID, names []string) ([]TestOrder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, name := range names {
		_, err := tx.Exec(ctx, `
			INSERT INTO test_orders (id, appointment_id, name, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (appointment_id, name) DO NOTHING
		`, uuid.New(), appointmentID, name, OrderPending)
		if err != nil {
			return nil, fmt.Errorf("insert test order %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.ListTestOrders(ctx, appointmentID)
}

const testOrderColumns = `
	id, appointment_id, name, status,
	result_value, result_unit, reference_range, result_note, resulted_at,
	created_at, updated_at`

func scanTestOrder(row pgx.Row) (*TestOrder, error) {
	var o TestOrder
	var value, unit, rng, note *string
	err := row.Scan(
		&o.ID, &o.AppointmentID, &o.Name, &o.Status,
		&value, &unit, &rng, &note, &o.ResultedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if value != nil {
		o.ResultValue = *value
	}
	if unit != nil {
		o.ResultUnit = *unit
	}
	if rng != nil {
		o.ReferenceRange = *rng
	}
	if note != nil {
		o.ResultNote = *note
	}
	return &o, nil
}

func (r *PgRepository) ListTestOrders(ctx context.Context, appointmentID uuid.UUID) ([]TestOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+testOrderColumns+`
		FROM test_orders
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TestOrder
	for rows.Next() {
		o, err := scanTestOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PgRepository) CountOpenOrders(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM test_orders
		WHERE appointment_id = $1 AND status <> 'completed'
	`, appointmentID).Scan(&n)
	return n, err
}

func (r *PgRepository) RecordResult(ctx context.Context, appointmentID uuid.UUID, result TestResult) (*TestOrder, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var wasOpen bool
	err = tx.QueryRow(ctx, `
		SELECT status <> 'completed'
		FROM test_orders
		WHERE appointment_id = $1 AND name = $2
		FOR UPDATE
	`, appointmentID, result.Name).Scan(&wasOpen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrUnknownTestOrder
		}
		return nil, 0, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE test_orders
		SET status = 'completed',
		    result_value = $3,
		    result_unit = $4,
		    reference_range = $5,
		    result_note = $6,
		    resulted_at = now(),
		    updated_at = now()
		WHERE appointment_id = $1 AND name = $2
		RETURNING `+testOrderColumns+`
	`, appointmentID, result.Name, result.Value, result.Unit, result.ReferenceRange, result.Note)

	order, err := scanTestOrder(row)
	if err != nil {
		return nil, 0, fmt.Errorf("update test order: %w", err)
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM test_orders
		WHERE appointment_id = $1 AND status <> 'completed'
	`, appointmentID).Scan(&remaining)
	if err != nil {
		return nil, 0, err
	}

	// Announce once, when this write closed the final open order. Overwrites
	// of an already-completed order stay silent.
	if wasOpen && remaining == 0 {
		if err := r.writeResultsReady(ctx, tx, appointmentID); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return order, remaining, nil
}

func (r *PgRepository) Finalize(ctx context.Context, encounterID uuid.UUID, diagnosis, treatment string, prescriptions []PrescriptionInput) (*Encounter, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE encounters
		SET diagnosis = $2,
		    treatment = $3,
		    finalized_at = coalesce(finalized_at, now()),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+encounterColumns+`
	`, encounterID, diagnosis, treatment)

	enc, err := scanEncounter(row)
	if err != nil {
		return nil, err
	}

	for _, p := range prescriptions {
		_, err := tx.Exec(ctx, `
			INSERT INTO prescriptions (id, encounter_id, medicine, dosage, duration, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (encounter_id, medicine) DO NOTHING
		`, uuid.New(), encounterID, p.Medicine, p.Dosage, p.Duration)
		if err != nil {
			return nil, fmt.Errorf("insert prescription %s: %w", p.Medicine, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return enc, nil
}

func (r *PgRepository) ListPrescriptions(ctx context.Context, encounterID uuid.UUID) ([]Prescription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, encounter_id, medicine, dosage, duration, created_at
		FROM prescriptions
		WHERE encounter_id = $1
		ORDER BY created_at ASC
	`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.EncounterID, &p.Medicine, &p.Dosage, &p.Duration, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgRepository) writeResultsReady(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) error {
	payload, err := json.Marshal(map[string]any{
		"event":          appointment.EventResultsReady,
		"appointment_id": appointmentID,
		"ready_at":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal results-ready payload: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   appointmentID.String(),
		AggregateType: "appointment",
		EventType:     appointment.EventResultsReady,
		Payload:       payload,
		KafkaTopic:    kafka.TopicAppointmentEvents,
		KafkaKey:      appointmentID.String(),
	}
	return postgres.WriteEntry(ctx, tx, entry)
}
