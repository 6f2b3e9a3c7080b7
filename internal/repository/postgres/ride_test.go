package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// openTestDB connects to RIDEDECK_TEST_DATABASE_DSN and applies the schema.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("RIDEDECK_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("RIDEDECK_TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func insertRider(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO users (id, name, role) VALUES ($1, 'Test Rider', 'rider')`, id)
	require.NoError(t, err)
	return id
}

func testRide(riderID string) *domain.Ride {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Ride{
		ID:            uuid.NewString(),
		RiderID:       riderID,
		Pickup:        domain.Point{Lat: 12.97, Lng: 77.59},
		Dropoff:       domain.Point{Lat: 12.93, Lng: 77.62},
		VehicleType:   domain.VehicleTypeGo,
		PaymentMethod: domain.PaymentMethodCash,
		RiderOffer:    220,
		Fare:          220,
		Status:        domain.RideStatusSearching,
		SafetyStatus:  domain.SafetyStatusNormal,
		OTP:           "4821",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRideRepository_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRideRepository(db)

	ride := testRide(insertRider(t, db))
	ride.Offers = []domain.Offer{{DriverID: "d-1", Amount: 240, ETA: 4}}
	require.NoError(t, repo.Create(ctx, ride))
	assert.Equal(t, int64(1), ride.Version)

	got, err := repo.GetByID(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.RiderID, got.RiderID)
	assert.Equal(t, "4821", got.OTP)
	assert.Equal(t, domain.RideStatusSearching, got.Status)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, 240.0, got.Offers[0].Amount)
	assert.Nil(t, got.FareSplit)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRideRepository_UpdateRejectsStaleVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRideRepository(db)

	ride := testRide(insertRider(t, db))
	require.NoError(t, repo.Create(ctx, ride))

	first, err := repo.GetByID(ctx, ride.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, ride.ID)
	require.NoError(t, err)

	first.Fare = 260
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Fare = 300
	assert.ErrorIs(t, repo.Update(ctx, second), repository.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, 260.0, stored.Fare)

	missing := testRide(ride.RiderID)
	missing.Version = 1
	assert.ErrorIs(t, repo.Update(ctx, missing), repository.ErrNotFound)
}

func TestRideRepository_OneActiveRidePerRider(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRideRepository(db)
	riderID := insertRider(t, db)

	first := testRide(riderID)
	require.NoError(t, repo.Create(ctx, first))
	assert.ErrorIs(t, repo.Create(ctx, testRide(riderID)), repository.ErrDuplicate)

	active, err := repo.FindActiveByRider(ctx, riderID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	first.Status = domain.RideStatusCancelled
	require.NoError(t, repo.Update(ctx, first))

	_, err = repo.FindActiveByRider(ctx, riderID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, repo.Create(ctx, testRide(riderID)))
}
