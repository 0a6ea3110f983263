package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/pkg/circuitbreaker"
)

const (
	breakerDirectory = "provider-directory"
	breakerCatalog   = "price-catalog"
)

// Service wraps the raw lookups with circuit breakers and applies the
// documented price fallback. It is what the booking coordinator talks to.
type Service struct {
	lookups           Lookups
	breakers          *circuitbreaker.Manager
	defaultPriceCents int64
	logger            *zap.Logger
}

func NewService(lookups Lookups, breakers *circuitbreaker.Manager, defaultPriceCents int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		lookups:           lookups,
		breakers:          breakers,
		defaultPriceCents: defaultPriceCents,
		logger:            logger,
	}
}

// GetProvider looks up the provider through the directory breaker.
func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	cb, err := s.breakers.GetOrCreate(breakerDirectory, circuitbreaker.DefaultConfig(breakerDirectory))
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(ctx, func() (interface{}, error) {
		p, err := s.lookups.GetProvider(ctx, id)
		if errors.Is(err, ErrProviderNotFound) {
			// Absence is an answer, not a directory failure; do not trip
			// the breaker on it.
			return (*Provider)(nil), nil
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("provider directory: %w", err)
	}

	p := result.(*Provider)
	if p == nil {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// GetPatient looks up the patient profile through the directory breaker.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	cb, err := s.breakers.GetOrCreate(breakerDirectory, circuitbreaker.DefaultConfig(breakerDirectory))
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(ctx, func() (interface{}, error) {
		p, err := s.lookups.GetPatient(ctx, id)
		if errors.Is(err, ErrPatientNotFound) {
			return (*PatientProfile)(nil), nil
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	p := result.(*PatientProfile)
	if p == nil {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

// ResolvePrice returns the catalog price for the provider's specialty. The
// default price applies when the specialty has no catalog entry or the
// catalog is unavailable (open breaker); booking proceeds either way and the
// chosen price is frozen onto the appointment.
func (s *Service) ResolvePrice(ctx context.Context, provider *Provider) int64 {
	cb, err := s.breakers.GetOrCreate(breakerCatalog, circuitbreaker.DefaultConfig(breakerCatalog))
	if err != nil {
		s.logger.Warn("catalog breaker unavailable, using default price", zap.Error(err))
		return s.defaultPriceCents
	}

	result, err := cb.ExecuteWithFallback(ctx,
		func() (interface{}, error) {
			cents, err := s.lookups.PriceForSpecialty(ctx, provider.Specialty)
			if errors.Is(err, ErrNoPrice) {
				return int64(0), nil
			}
			return cents, err
		},
		func(error) (interface{}, error) {
			return int64(0), nil
		},
	)
	if err != nil {
		s.logger.Warn("price lookup failed, using default price",
			zap.String("specialty", provider.Specialty),
			zap.Error(err))
		return s.defaultPriceCents
	}

	cents := result.(int64)
	if cents <= 0 {
		return s.defaultPriceCents
	}
	return cents
}
