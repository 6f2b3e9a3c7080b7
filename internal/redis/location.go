package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const (
	driverLocationKey = "drivers:locations"
	searchingRidesKey = "rides:searching"
	campaignZonesKey  = "campaigns:zones"
)

// GeoMember is a member of a geo set with its position and distance from the query point.
type GeoMember struct {
	ID         string
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// LocationStore handles the driver, searching-ride and campaign geo sets in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a driver's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return s.add(ctx, driverLocationKey, driverID, lat, lng)
}

// RemoveLocation removes a driver's location from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, driverLocationKey, driverID).Err()
}

// FindNearbyDrivers returns up to count drivers within radiusKm, nearest first.
// A count of zero means no limit.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64, count int) ([]GeoMember, error) {
	return s.search(ctx, driverLocationKey, lat, lng, radiusKm, count)
}

// AddSearchingRide indexes an open ride's pickup point for demand counting.
func (s *LocationStore) AddSearchingRide(ctx context.Context, rideID string, lat, lng float64) error {
	return s.add(ctx, searchingRidesKey, rideID, lat, lng)
}

// RemoveSearchingRide drops a ride from the demand index.
func (s *LocationStore) RemoveSearchingRide(ctx context.Context, rideID string) error {
	return s.client.ZRem(ctx, searchingRidesKey, rideID).Err()
}

// CountSearchingRides counts searching rides whose pickup lies within radiusKm.
func (s *LocationStore) CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	members, err := s.client.GeoSearch(ctx, searchingRidesKey, &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// PutCampaign indexes a campaign zone center.
func (s *LocationStore) PutCampaign(ctx context.Context, campaignID string, lat, lng float64) error {
	return s.add(ctx, campaignZonesKey, campaignID, lat, lng)
}

// RemoveCampaign drops a campaign zone.
func (s *LocationStore) RemoveCampaign(ctx context.Context, campaignID string) error {
	return s.client.ZRem(ctx, campaignZonesKey, campaignID).Err()
}

// FindNearbyCampaigns returns campaign ids whose center lies within radiusKm, nearest first.
func (s *LocationStore) FindNearbyCampaigns(ctx context.Context, lat, lng, radiusKm float64) ([]GeoMember, error) {
	return s.search(ctx, campaignZonesKey, lat, lng, radiusKm, 0)
}

func (s *LocationStore) add(ctx context.Context, key, member string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, key, &redis.GeoLocation{
		Name:      member,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

func (s *LocationStore) search(ctx context.Context, key string, lat, lng, radiusKm float64, count int) ([]GeoMember, error) {
	results, err := s.client.GeoSearchLocation(ctx, key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      count,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	members := make([]GeoMember, 0, len(results))
	for _, r := range results {
		members = append(members, GeoMember{
			ID:         r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}

	return members, nil
}
