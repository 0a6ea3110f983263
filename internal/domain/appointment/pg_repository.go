package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/infrastructure/kafka"
	"github.com/clinware/go-sched/internal/infrastructure/postgres"
)

const pgUniqueViolation = "23505"

// PgRepository is the PostgreSQL appointment store. Mutations write their
// state-transition events to the outbox inside the same transaction.
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

const appointmentColumns = `
	id, patient_id, provider_id, template_id, visit_date, status, price_cents,
	contact_name, contact_phone, idempotency_key,
	cancel_initiator, cancel_reason, cancelled_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelInitiator, cancelReason *string
	var cancelledAt *time.Time

	err := row.Scan(
		&a.ID, &a.PatientID, &a.ProviderID, &a.TemplateID, &a.VisitDate,
		&a.Status, &a.PriceCents,
		&a.Contact.Name, &a.Contact.Phone, &a.IdempotencyKey,
		&cancelInitiator, &cancelReason, &cancelledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if cancelInitiator != nil {
		a.Cancellation = &CancellationRecord{
			Initiator: Role(*cancelInitiator),
		}
		if cancelReason != nil {
			a.Cancellation.Reason = *cancelReason
		}
		if cancelledAt != nil {
			a.Cancellation.CancelledAt = *cancelledAt
		}
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CountActive(ctx context.Context, templateID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE template_id = $1
		  AND visit_date = $2
		  AND status NOT IN ('cancelled', 'patient_cancelled', 'doctor_cancelled')
	`, templateID, date).Scan(&n)
	return n, err
}

// CreateBooked inserts the appointment only while the live seat count is
// below capacity. The count and the insert run as one statement, so the
// store itself rejects overbooking even outside the slot lock.
func (r *PgRepository) CreateBooked(ctx context.Context, appt *Appointment, capacity int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, provider_id, template_id, visit_date, status, price_cents,
			 contact_name, contact_phone, idempotency_key, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now()
		WHERE (
			SELECT count(*)
			FROM appointments
			WHERE template_id = $4
			  AND visit_date = $5
			  AND status NOT IN ('cancelled', 'patient_cancelled', 'doctor_cancelled')
		) < $11
		RETURNING created_at, updated_at
	`,
		appt.ID, appt.PatientID, appt.ProviderID, appt.TemplateID, appt.VisitDate,
		appt.Status, appt.PriceCents,
		appt.Contact.Name, appt.Contact.Phone, appt.IdempotencyKey,
		capacity,
	)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotFull
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := r.writeEvent(ctx, tx, appt, EventBooked); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateStatus compare-and-swaps the status; a stale `from` yields
// ErrInvalidTransition so the caller re-reads before retrying.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.classifyStatusMiss(ctx, id)
		}
		return nil, err
	}

	if event := eventForStatus(to); event != "" {
		if err := r.writeEvent(ctx, tx, appt, event); err != nil {
			return nil, err
		}
	}
	if to == StatusCompleted {
		if err := r.writeBillingEvent(ctx, tx, appt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID, from, to Status, rec CancellationRecord) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_initiator = $4,
		    cancel_reason = $5,
		    cancelled_at = $6,
		    updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, string(rec.Initiator), rec.Reason, rec.CancelledAt)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.classifyStatusMiss(ctx, id)
		}
		return nil, err
	}

	if err := r.writeEvent(ctx, tx, appt, EventCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY visit_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListForSlot(ctx context.Context, templateID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE template_id = $1 AND visit_date = $2
		ORDER BY created_at ASC
	`, templateID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *appt)
	}
	return result, rows.Err()
}

// classifyStatusMiss distinguishes "gone" from "moved on" when a CAS update
// matched no row.
func (r *PgRepository) classifyStatusMiss(ctx context.Context, id uuid.UUID) error {
	var status Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrInvalidTransition
}

func eventForStatus(to Status) string {
	switch to {
	case StatusConfirmed:
		return EventConfirmed
	case StatusCompleted:
		return EventCompleted
	default:
		// Entering waiting_results is not announced; results_ready fires
		// when the last open test order completes.
		return ""
	}
}

func (r *PgRepository) writeEvent(ctx context.Context, tx pgx.Tx, appt *Appointment, eventType string) error {
	payload, err := json.Marshal(map[string]any{
		"event":          eventType,
		"appointment_id": appt.ID,
		"patient_id":     appt.PatientID,
		"provider_id":    appt.ProviderID,
		"template_id":    appt.TemplateID,
		"visit_date":     appt.VisitDate.Format("2006-01-02"),
		"status":         appt.Status,
		"price_cents":    appt.PriceCents,
		"contact_name":   appt.Contact.Name,
		"contact_phone":  appt.Contact.Phone,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   appt.ID.String(),
		AggregateType: "appointment",
		EventType:     eventType,
		Payload:       payload,
		KafkaTopic:    kafka.TopicAppointmentEvents,
		KafkaKey:      appt.ID.String(),
	}
	return postgres.WriteEntry(ctx, tx, entry)
}

// writeBillingEvent emits the completed appointment with its frozen price so
// the invoicing collaborator never re-reads the catalog.
func (r *PgRepository) writeBillingEvent(ctx context.Context, tx pgx.Tx, appt *Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"event":          EventCompleted,
		"appointment_id": appt.ID,
		"patient_id":     appt.PatientID,
		"provider_id":    appt.ProviderID,
		"visit_date":     appt.VisitDate.Format("2006-01-02"),
		"price_cents":    appt.PriceCents,
	})
	if err != nil {
		return fmt.Errorf("marshal billing payload: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   appt.ID.String(),
		AggregateType: "appointment",
		EventType:     EventCompleted,
		Payload:       payload,
		KafkaTopic:    kafka.TopicBillingCompleted,
		KafkaKey:      appt.ID.String(),
	}
	return postgres.WriteEntry(ctx, tx, entry)
}
