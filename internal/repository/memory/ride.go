// Package memory provides in-process repository implementations with the
// same contracts as the PostgreSQL ones, including version-checked ride writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// RideRepository is an in-memory implementation of repository.RideRepository.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride
}

// NewRideRepository creates a new in-memory ride repository.
func NewRideRepository() *RideRepository {
	return &RideRepository{rides: make(map[string]*domain.Ride)}
}

var _ repository.RideRepository = (*RideRepository)(nil)

// Create persists a new ride at version 1.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	if ride.Status.IsActive() && r.activeForRiderLocked(ride.RiderID, "") != nil {
		return repository.ErrDuplicate
	}

	ride.Version = 1
	r.rides[ride.ID] = ride.Clone()
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ride, ok := r.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride.Clone(), nil
}

// Update writes the ride if its stored version is unchanged and bumps the version.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != ride.Version {
		return repository.ErrVersionConflict
	}
	if ride.Status.IsActive() && r.activeForRiderLocked(ride.RiderID, ride.ID) != nil {
		return repository.ErrDuplicate
	}

	ride.Version++
	ride.UpdatedAt = time.Now().UTC()
	r.rides[ride.ID] = ride.Clone()
	return nil
}

// FindActiveByRider returns the rider's ride in any active status.
func (r *RideRepository) FindActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ride := r.activeForRiderLocked(riderID, ""); ride != nil {
		return ride.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

// FindActiveByDriver returns the ride the driver is currently bound to.
func (r *RideRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ride := range r.rides {
		if ride.DriverID != driverID {
			continue
		}
		for _, status := range domain.DriverActiveRideStatuses {
			if ride.Status == status {
				return ride.Clone(), nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

// ListByStatus retrieves up to limit rides in the given status, oldest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	r.mu.RLock()
	var out []*domain.Ride
	for _, ride := range r.rides {
		if ride.Status == status {
			out = append(out, ride.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByParty retrieves a page of the user's rides, newest first, with the total count.
func (r *RideRepository) ListByParty(ctx context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error) {
	r.mu.RLock()
	var all []*domain.Ride
	for _, ride := range r.rides {
		if ride.RiderID == userID || ride.DriverID == userID {
			all = append(all, ride.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []*domain.Ride{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *RideRepository) activeForRiderLocked(riderID, exceptID string) *domain.Ride {
	for id, ride := range r.rides {
		if id != exceptID && ride.RiderID == riderID && ride.Status.IsActive() {
			return ride
		}
	}
	return nil
}
