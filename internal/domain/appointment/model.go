// Package appointment owns the appointment record and its status state
// machine. All transition legality lives here; other packages request
// transitions but never re-implement the rules.
package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending          Status = "pending"
	StatusConfirmed        Status = "confirmed"
	StatusWaitingResults   Status = "waiting_results"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusPatientCancelled Status = "patient_cancelled"
	StatusDoctorCancelled  Status = "doctor_cancelled"
)

// Role identifies the caller of an operation.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleStaff    Role = "staff"
	RoleLab      Role = "lab"
)

// ContactSnapshot is the patient's name and phone frozen at booking time.
// Later profile edits do not rewrite past appointments.
type ContactSnapshot struct {
	Name  string
	Phone string
}

// CancellationRecord is appended once when an appointment reaches a
// cancelled terminal state. It is never updated afterwards.
type CancellationRecord struct {
	Initiator   Role
	Reason      string
	CancelledAt time.Time
}

// Appointment is one patient reservation against a slot instance. Records
// are never hard-deleted; they only move to a terminal status.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	TemplateID uuid.UUID
	VisitDate  time.Time // midnight, clinic time zone
	Status     Status

	// PriceCents is resolved from the catalog once and frozen; catalog
	// changes do not retroactively reprice the appointment.
	PriceCents int64

	Contact        ContactSnapshot
	IdempotencyKey string

	Cancellation *CancellationRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SlotKey identifies the appointment's slot instance for locking and
// capacity queries.
func (a *Appointment) SlotKey() string {
	return a.TemplateID.String() + ":" + a.VisitDate.Format("2006-01-02")
}
