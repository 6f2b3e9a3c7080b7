package repository

import (
	"context"

	"ridedeck/internal/domain"
)

// DriverRepository defines the persistence operations for driver presence.
type DriverRepository interface {
	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDs retrieves the drivers that exist among ids. Missing ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error)

	// SetOnline toggles the driver's online flag.
	SetOnline(ctx context.Context, id string, online bool) error
}
