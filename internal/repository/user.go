package repository

import (
	"context"

	"ridedeck/internal/domain"
)

// UserRepository defines read access to user accounts and rating updates.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// ApplyRating folds a new rating into the user's running average.
	ApplyRating(ctx context.Context, id string, rating int) error
}
