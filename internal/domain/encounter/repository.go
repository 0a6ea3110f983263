package encounter

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains the encounter store operations the workflow needs.
type Repository interface {
	// EnsureEncounter returns the appointment's encounter, creating it when
	// none exists yet. A non-empty note fills the encounter's notes if they
	// are still blank; an existing note is never overwritten, so retries are
	// safe.
	EnsureEncounter(ctx context.Context, appointmentID uuid.UUID, note string) (*Encounter, error)

	// GetByAppointment returns the encounter or ErrEncounterNotFound.
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Encounter, error)

	// CreateTestOrders inserts one pending order per name, silently skipping
	// names already ordered for the appointment. It returns the full order
	// set afterwards.
	CreateTestOrders(ctx context.Context, appointmentID uuid.UUID, names []string) ([]TestOrder, error)

	ListTestOrders(ctx context.Context, appointmentID uuid.UUID) ([]TestOrder, error)

	// RecordResult completes the named order with the given result and
	// returns how many orders remain open afterwards. Recording a result for
	// an unknown name yields ErrUnknownTestOrder. When the last open order
	// completes, the store emits the results-ready event.
	RecordResult(ctx context.Context, appointmentID uuid.UUID, result TestResult) (*TestOrder, int, error)

	CountOpenOrders(ctx context.Context, appointmentID uuid.UUID) (int, error)

	// Finalize seals the encounter with the diagnosis and treatment text and
	// writes the prescription lines, skipping medicines already written.
	Finalize(ctx context.Context, encounterID uuid.UUID, diagnosis, treatment string, prescriptions []PrescriptionInput) (*Encounter, error)

	ListPrescriptions(ctx context.Context, encounterID uuid.UUID) ([]Prescription, error)
}
