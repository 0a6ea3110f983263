// Package encounter implements the clinical encounter workflow layered on a
// confirmed appointment: ordering tests, entering results and finalizing the
// visit with a diagnosis and prescriptions.
package encounter

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEncounterNotFound = errors.New("no encounter exists for this appointment")
	ErrMissingDiagnosis  = errors.New("diagnosis is required to finalize")
	ErrUnknownTestOrder  = errors.New("no such test order for this appointment")
	ErrResultsPending    = errors.New("open test orders remain")
	ErrNoTestsGiven      = errors.New("at least one test result is required")
)

// OrderStatus is the test order lifecycle state.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

// Encounter is the clinical record attached to one appointment. It is
// created lazily by the first workflow step and sealed by finalization.
type Encounter struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Diagnosis     string
	// Treatment is the optional treatment text recorded at finalization.
	Treatment string
	// Notes is the free-text note supplied when the encounter was opened.
	Notes       string
	FinalizedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Finalized reports whether the encounter has been sealed.
func (e *Encounter) Finalized() bool { return e.FinalizedAt != nil }

// TestOrder is one lab test requested during the encounter. Orders are
// unique per (appointment, name); re-ordering the same test is a no-op.
type TestOrder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Name          string
	Status        OrderStatus

	// Result fields are populated when the order completes.
	ResultValue    string
	ResultUnit     string
	ReferenceRange string
	ResultNote     string
	ResultedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the order still awaits a result.
func (o *TestOrder) Open() bool { return o.Status != OrderCompleted }

// TestResult is the lab's answer for one order, addressed by order ID or by
// test name. When both are set the ID wins.
type TestResult struct {
	OrderID        uuid.UUID
	Name           string
	Value          string
	Unit           string
	ReferenceRange string
	Note           string
}

// Prescription is one medication line written at finalization. Lines are
// unique per (encounter, medicine) so a retried finalize does not duplicate
// them.
type Prescription struct {
	ID          uuid.UUID
	EncounterID uuid.UUID
	Medicine    string
	Dosage      string
	Duration    string
	CreatedAt   time.Time
}

// PrescriptionInput is one requested medication line.
type PrescriptionInput struct {
	Medicine string
	Dosage   string
	Duration string
}
