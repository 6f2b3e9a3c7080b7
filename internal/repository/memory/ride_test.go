package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

func newRide(id, riderID string, status domain.RideStatus) *domain.Ride {
	return &domain.Ride{
		ID:        id,
		RiderID:   riderID,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestRideRepository_UpdateRejectsStaleVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRideRepository()

	require.NoError(t, repo.Create(ctx, newRide("ride-1", "rider-1", domain.RideStatusSearching)))

	first, err := repo.GetByID(ctx, "ride-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "ride-1")
	require.NoError(t, err)

	first.Fare = 120
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Fare = 150
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "ride-1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, stored.Fare)
}

func TestRideRepository_ConcurrentUpdatesExactlyOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRideRepository()
	require.NoError(t, repo.Create(ctx, newRide("ride-1", "rider-1", domain.RideStatusNegotiating)))

	const workers = 20
	var wins int32
	var wg, ready sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		ready.Add(1)
		go func() {
			defer wg.Done()
			ride, err := repo.GetByID(ctx, "ride-1")
			ready.Done()
			if err != nil {
				return
			}
			<-start
			ride.Status = domain.RideStatusBooked
			if repo.Update(ctx, ride) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}

	ready.Wait()
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRideRepository_SingleActiveRidePerRider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRideRepository()

	require.NoError(t, repo.Create(ctx, newRide("ride-1", "rider-1", domain.RideStatusSearching)))
	err := repo.Create(ctx, newRide("ride-2", "rider-1", domain.RideStatusSearching))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	// Scheduled rides do not count as active.
	require.NoError(t, repo.Create(ctx, newRide("ride-3", "rider-1", domain.RideStatusScheduled)))

	active, err := repo.FindActiveByRider(ctx, "rider-1")
	require.NoError(t, err)
	assert.Equal(t, "ride-1", active.ID)
}

func TestRideRepository_ListByPartyPaginates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRideRepository()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		ride := newRide(id, "rider-1", domain.RideStatusCompleted)
		ride.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, ride))
	}

	page, total, err := repo.ListByParty(ctx, "rider-1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, _, err = repo.ListByParty(ctx, "rider-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
}
