// Package booking coordinates the capacity-safe creation of appointments.
// It validates the requested slot against the provider's templates, freezes
// the patient contact and price snapshots, and funnels the insert through the
// per-slot lock and the store's atomic capacity check.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/directory"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/schedule"
	"github.com/clinware/go-sched/internal/infrastructure/redislock"
	"github.com/clinware/go-sched/pkg/idempotency"
)

var (
	// ErrSlotMismatch means the requested date does not fall on the
	// template's weekday, so no such slot instance exists.
	ErrSlotMismatch = errors.New("requested date does not match the template weekday")
	ErrPastDate     = errors.New("requested date is in the past")
	// ErrSlotBusy means another booking holds the slot lock right now. The
	// slot may still have seats; the client should retry.
	ErrSlotBusy = errors.New("slot is busy, retry")
)

// Directory is the collaborator surface booking needs. directory.Service
// implements it with circuit breakers and price fallback.
type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.PatientProfile, error)
	ResolvePrice(ctx context.Context, provider *directory.Provider) int64
}

// Request is one booking attempt. VisitDate may carry any wall-clock time;
// the coordinator truncates it to clinic-local midnight.
type Request struct {
	PatientID  uuid.UUID
	TemplateID uuid.UUID
	VisitDate  time.Time
}

// Coordinator serializes booking attempts per slot instance and enforces
// capacity at insert time.
type Coordinator struct {
	templates schedule.Repository
	appts     appointment.Repository
	dir       Directory
	locker    redislock.Locker
	loc       *time.Location
	logger    *zap.Logger
}

func NewCoordinator(templates schedule.Repository, appts appointment.Repository, dir Directory, locker redislock.Locker, loc *time.Location, logger *zap.Logger) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		templates: templates,
		appts:     appts,
		dir:       dir,
		locker:    locker,
		loc:       loc,
		logger:    logger,
	}
}

// Location returns the clinic time zone all visit dates resolve in.
func (c *Coordinator) Location() *time.Location { return c.loc }

// Book reserves one seat in the slot instance identified by the request.
// On a full slot it returns appointment.ErrSlotFull; when the patient
// already holds an active appointment in the slot it returns
// appointment.ErrDuplicateBooking. Both leave the store untouched.
func (c *Coordinator) Book(ctx context.Context, req Request) (*appointment.Appointment, error) {
	tmpl, err := c.templates.GetTemplateByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	visitDate := c.dateOf(req.VisitDate)
	if visitDate.Weekday() != tmpl.Weekday {
		return nil, ErrSlotMismatch
	}
	if visitDate.Before(c.dateOf(time.Now())) {
		return nil, ErrPastDate
	}

	provider, err := c.dir.GetProvider(ctx, tmpl.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	patient, err := c.dir.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	now := time.Now()
	appt := &appointment.Appointment{
		ID:         uuid.New(),
		PatientID:  req.PatientID,
		ProviderID: tmpl.ProviderID,
		TemplateID: tmpl.ID,
		VisitDate:  visitDate,
		Status:     appointment.StatusPending,
		PriceCents: c.dir.ResolvePrice(ctx, provider),
		Contact: appointment.ContactSnapshot{
			Name:  patient.Name,
			Phone: patient.Phone,
		},
		IdempotencyKey: idempotency.BookingKey(req.PatientID.String(), tmpl.ID.String(), visitDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = c.locker.WithSlotLock(ctx, appt.SlotKey(), func(ctx context.Context) error {
		return c.appts.CreateBooked(ctx, appt, tmpl.Capacity)
	})
	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	c.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("slot", appt.SlotKey()),
		zap.Int64("price_cents", appt.PriceCents))

	return appt, nil
}

func (c *Coordinator) dateOf(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}
