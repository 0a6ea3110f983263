// Package schedule expands recurring weekly availability templates into
// concrete bookable slot instances.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTemplateNotFound = errors.New("schedule template not found")

// Template is one recurring weekly availability window for a provider.
// Templates are owned by provider management; this engine only reads them.
type Template struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    time.Weekday
	StartTime  string // clinic-local wall clock, "15:04"
	EndTime    string
	Capacity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository provides read access to schedule templates.
type Repository interface {
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*Template, error)
	ListTemplatesByProvider(ctx context.Context, providerID uuid.UUID) ([]Template, error)
}
