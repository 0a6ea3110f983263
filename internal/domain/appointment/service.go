package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types recorded on every state transition. The outbox relay forwards
// them to the notification and invoicing collaborators.
const (
	EventBooked       = "appointment.booked"
	EventConfirmed    = "appointment.confirmed"
	EventCancelled    = "appointment.cancelled"
	EventResultsReady = "appointment.results_ready"
	EventCompleted    = "appointment.completed"
)

// Service drives confirmation and cancellation. Booking creation lives in
// the booking package; encounter-driven transitions in the encounter package.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Get returns the appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPatient returns the patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Confirm moves a pending appointment to confirmed. Staff or provider only.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := ValidateTransition(appt.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusConfirmed)
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment confirmed", zap.String("appointment_id", id.String()))
	return updated, nil
}

// Cancel applies the cancellation policy: allowed only from pending or
// confirmed, records who cancelled and why, and frees the seat immediately
// (capacity queries only count non-cancelled statuses).
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, initiator Role, reason string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	target := CancelTarget(initiator)
	if err := ValidateTransition(appt.Status, target); err != nil {
		return nil, err
	}

	rec := CancellationRecord{
		Initiator:   initiator,
		Reason:      strings.TrimSpace(reason),
		CancelledAt: time.Now().UTC(),
	}

	updated, err := s.repo.Cancel(ctx, id, appt.Status, target, rec)
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment cancelled",
		zap.String("appointment_id", id.String()),
		zap.String("initiator", string(initiator)),
		zap.String("status", string(target)),
	)
	return updated, nil
}
