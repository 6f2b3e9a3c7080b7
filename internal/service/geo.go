package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/redis"
	"ridedeck/internal/repository"
)

// candidateScanFactor widens the raw geo query so attribute filtering
// still leaves enough candidates.
const candidateScanFactor = 10

// Candidate is an online driver near a query point.
type Candidate struct {
	Driver     *domain.Driver
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// DriverQuery filters nearby drivers.
type DriverQuery struct {
	Lat         float64
	Lng         float64
	RadiusKm    float64
	VehicleType domain.VehicleType
	MinRating   float64
	Limit       int
}

// GeoIndex answers nearest-entity lookups over drivers, open rides and campaign zones.
type GeoIndex interface {
	NearbyDrivers(ctx context.Context, q DriverQuery) ([]Candidate, error)
	NearbyCampaign(ctx context.Context, lat, lng, radiusKm float64) (*domain.Campaign, error)
	CountOnlineDrivers(ctx context.Context, lat, lng, radiusKm float64) (int, error)
	CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error)
	TrackSearchingRide(ctx context.Context, ride *domain.Ride) error
	UntrackSearchingRide(ctx context.Context, rideID string) error
	UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error
	RemoveDriver(ctx context.Context, driverID string) error
}

// Ensure GeoService implements GeoIndex.
var _ GeoIndex = (*GeoService)(nil)

// GeoService is the Redis-backed GeoIndex. Positions come from the geo sets,
// driver attributes from the presence cache with a repository fallback.
type GeoService struct {
	locationStore redis.LocationStoreInterface
	cacheStore    redis.CacheStoreInterface
	driverRepo    repository.DriverRepository
	campaignRepo  repository.CampaignRepository
	logger        logrus.FieldLogger
	now           func() time.Time
}

// NewGeoService creates a new GeoService.
func NewGeoService(
	locationStore redis.LocationStoreInterface,
	cacheStore redis.CacheStoreInterface,
	driverRepo repository.DriverRepository,
	campaignRepo repository.CampaignRepository,
	logger logrus.FieldLogger,
) *GeoService {
	return &GeoService{
		locationStore: locationStore,
		cacheStore:    cacheStore,
		driverRepo:    driverRepo,
		campaignRepo:  campaignRepo,
		logger:        logger,
		now:           time.Now,
	}
}

// NearbyDrivers returns online drivers matching the query, nearest first.
func (s *GeoService) NearbyDrivers(ctx context.Context, q DriverQuery) ([]Candidate, error) {
	scan := 0
	if q.Limit > 0 {
		scan = q.Limit * candidateScanFactor
	}

	members, err := s.locationStore.FindNearbyDrivers(ctx, q.Lat, q.Lng, q.RadiusKm, scan)
	if err != nil {
		return nil, fmt.Errorf("find nearby drivers: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	drivers, err := s.driversByID(ctx, memberIDs(members))
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		d, ok := drivers[m.ID]
		if !ok || !d.Online {
			continue
		}
		if q.VehicleType != "" && d.VehicleType != q.VehicleType {
			continue
		}
		if d.Rating < q.MinRating {
			continue
		}
		candidates = append(candidates, Candidate{Driver: d, Lat: m.Lat, Lng: m.Lng, DistanceKm: m.DistanceKm})
		if q.Limit > 0 && len(candidates) == q.Limit {
			break
		}
	}

	return candidates, nil
}

// NearbyCampaign returns the nearest active campaign whose center lies within radiusKm, or nil.
func (s *GeoService) NearbyCampaign(ctx context.Context, lat, lng, radiusKm float64) (*domain.Campaign, error) {
	members, err := s.locationStore.FindNearbyCampaigns(ctx, lat, lng, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("find nearby campaigns: %w", err)
	}

	for _, m := range members {
		campaign, err := s.campaignRepo.GetByID(ctx, m.ID)
		if errors.Is(err, repository.ErrNotFound) {
			// Stale zone left behind by a deleted campaign.
			_ = s.locationStore.RemoveCampaign(ctx, m.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if campaign.IsActive {
			return campaign, nil
		}
	}

	return nil, nil
}

// IndexCampaigns loads every active campaign into the zone set and returns how many were indexed.
func (s *GeoService) IndexCampaigns(ctx context.Context) (int, error) {
	campaigns, err := s.campaignRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	for _, c := range campaigns {
		if err := s.locationStore.PutCampaign(ctx, c.ID, c.Lat, c.Lng); err != nil {
			return 0, fmt.Errorf("index campaign %s: %w", c.ID, err)
		}
	}
	return len(campaigns), nil
}

// CountOnlineDrivers counts online drivers with an active subscription within radiusKm.
func (s *GeoService) CountOnlineDrivers(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	members, err := s.locationStore.FindNearbyDrivers(ctx, lat, lng, radiusKm, 0)
	if err != nil {
		return 0, fmt.Errorf("find nearby drivers: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	drivers, err := s.driversByID(ctx, memberIDs(members))
	if err != nil {
		return 0, err
	}

	now := s.now()
	count := 0
	for _, d := range drivers {
		if d.Online && d.SubscriptionActive(now) {
			count++
		}
	}
	return count, nil
}

// CountSearchingRides counts searching rides whose pickup lies within radiusKm.
func (s *GeoService) CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	return s.locationStore.CountSearchingRides(ctx, lat, lng, radiusKm)
}

// TrackSearchingRide indexes the ride's pickup in the demand set.
func (s *GeoService) TrackSearchingRide(ctx context.Context, ride *domain.Ride) error {
	return s.locationStore.AddSearchingRide(ctx, ride.ID, ride.Pickup.Lat, ride.Pickup.Lng)
}

// UntrackSearchingRide removes the ride from the demand set.
func (s *GeoService) UntrackSearchingRide(ctx context.Context, rideID string) error {
	return s.locationStore.RemoveSearchingRide(ctx, rideID)
}

// UpdateDriverLocation records the driver's last known position.
func (s *GeoService) UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return s.locationStore.UpdateLocation(ctx, driverID, lat, lng)
}

// RemoveDriver drops the driver from the geo set and the presence cache.
func (s *GeoService) RemoveDriver(ctx context.Context, driverID string) error {
	if err := s.locationStore.RemoveLocation(ctx, driverID); err != nil {
		return err
	}
	return s.cacheStore.InvalidateDriver(ctx, driverID)
}

// driversByID batch-loads drivers from cache, filling misses from the repository.
func (s *GeoService) driversByID(ctx context.Context, ids []string) (map[string]*domain.Driver, error) {
	drivers, missing, err := s.cacheStore.GetDriversBatch(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("driver cache unavailable, reading from store")
		drivers = make(map[string]*domain.Driver, len(ids))
		missing = ids
	}
	if len(missing) == 0 {
		return drivers, nil
	}

	loaded, err := s.driverRepo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}
	for _, d := range loaded {
		drivers[d.ID] = d
	}

	if err := s.cacheStore.SetDriversBatch(ctx, loaded); err != nil {
		s.logger.WithError(err).Debug("failed to warm driver cache")
	}

	return drivers, nil
}

func memberIDs(members []redis.GeoMember) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

// coordinateDistance is the Euclidean delta in raw degrees. It is not a
// geographic distance; the dispatch tie window is tuned against it.
func coordinateDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return math.Sqrt(math.Pow(lat1-lat2, 2) + math.Pow(lng1-lng2, 2))
}

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}

// isValidPoint rejects out-of-range and unset (0,0) coordinates.
func isValidPoint(p domain.Point) bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return isValidLatitude(p.Lat) && isValidLongitude(p.Lng)
}
