package repository

import (
	"context"

	"ridedeck/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride at version 1.
	// Returns ErrDuplicate if the rider already holds an active ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// Update writes the ride only if the stored version still equals ride.Version,
	// then increments ride.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, ride *domain.Ride) error

	// FindActiveByRider returns the rider's ride in any active status.
	FindActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error)

	// FindActiveByDriver returns the ride the driver is currently bound to.
	FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error)

	// ListByStatus retrieves up to limit rides in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error)

	// ListByParty retrieves a page of rides where the user is rider or driver,
	// newest first, together with the total count.
	ListByParty(ctx context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error)
}
