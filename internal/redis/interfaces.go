package redis

import (
	"context"
	"time"

	"ridedeck/internal/domain"
	"ridedeck/internal/events"
)

// LocationStoreInterface defines the interface for geo set operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error
	RemoveLocation(ctx context.Context, driverID string) error
	FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64, count int) ([]GeoMember, error)
	AddSearchingRide(ctx context.Context, rideID string, lat, lng float64) error
	RemoveSearchingRide(ctx context.Context, rideID string) error
	CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error)
	PutCampaign(ctx context.Context, campaignID string, lat, lng float64) error
	RemoveCampaign(ctx context.Context, campaignID string) error
	FindNearbyCampaigns(ctx context.Context, lat, lng, radiusKm float64) ([]GeoMember, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireRiderLock(ctx context.Context, riderID string, ttl time.Duration) (string, bool, error)
	ReleaseRiderLock(ctx context.Context, riderID, token string) error
}

// CacheStoreInterface defines the interface for driver presence caching.
type CacheStoreInterface interface {
	GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error)
	SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error
	InvalidateDriver(ctx context.Context, driverID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ CacheStoreInterface    = (*CacheStore)(nil)
	_ events.Publisher       = (*Publisher)(nil)
)
