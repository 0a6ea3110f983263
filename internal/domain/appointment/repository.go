package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains the appointment store operations the services need.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CountActive returns the number of appointments occupying the slot
	// instance, i.e. those whose status still counts against capacity.
	CountActive(ctx context.Context, templateID uuid.UUID, date time.Time) (int, error)

	// CreateBooked inserts the appointment if and only if the slot still has
	// a free seat. The capacity check and the insert are one atomic unit;
	// concurrent attempts on a full slot get ErrSlotFull. A second booking
	// for the same patient and slot gets ErrDuplicateBooking.
	CreateBooked(ctx context.Context, appt *Appointment, capacity int) error

	// UpdateStatus moves the appointment from -> to with a compare-and-swap
	// on the stored status. ErrInvalidTransition is returned when the stored
	// status no longer matches from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Cancel performs the CAS status update and appends the cancellation
	// record in the same write.
	Cancel(ctx context.Context, id uuid.UUID, from, to Status, rec CancellationRecord) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListForSlot(ctx context.Context, templateID uuid.UUID, date time.Time) ([]Appointment, error)
}
