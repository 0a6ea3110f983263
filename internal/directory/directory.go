// Package directory provides read-only lookups against the external
// collaborators the engine consumes: the provider directory, the patient
// profile store and the price/service catalog.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrNoPrice          = errors.New("no catalog price for specialty")
)

// Provider describes a clinician offering appointment slots.
type Provider struct {
	ID        uuid.UUID
	Name      string
	Room      string
	Specialty string
}

// PatientProfile is the live profile; booking snapshots Name and Phone onto
// the appointment and never joins back.
type PatientProfile struct {
	ID    uuid.UUID
	Name  string
	Phone string
}

// Lookups is the raw collaborator interface, without resilience concerns.
type Lookups interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*PatientProfile, error)
	// PriceForSpecialty returns the catalog price in cents, ErrNoPrice when
	// the specialty has no entry.
	PriceForSpecialty(ctx context.Context, specialty string) (int64, error)
}
