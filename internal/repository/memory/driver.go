package memory

import (
	"context"
	"sync"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// DriverRepository is an in-memory implementation of repository.DriverRepository.
type DriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver
}

// NewDriverRepository creates a new in-memory driver repository.
func NewDriverRepository() *DriverRepository {
	return &DriverRepository{drivers: make(map[string]*domain.Driver)}
}

var _ repository.DriverRepository = (*DriverRepository)(nil)

// Put adds or replaces a driver.
func (r *DriverRepository) Put(driver *domain.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *driver
	r.drivers[driver.ID] = &copied
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	driver, ok := r.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *driver
	return &copied, nil
}

// GetByIDs retrieves the drivers that exist among ids.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Driver, 0, len(ids))
	for _, id := range ids {
		if driver, ok := r.drivers[id]; ok {
			copied := *driver
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SetOnline toggles the driver's online flag.
func (r *DriverRepository) SetOnline(ctx context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	driver, ok := r.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Online = online
	return nil
}
