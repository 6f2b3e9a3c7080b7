package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/redis"
	"ridedeck/internal/repository"
)

// DriverService handles driver presence: going online and location updates.
type DriverService struct {
	geo        GeoIndex
	cacheStore redis.CacheStoreInterface
	driverRepo repository.DriverRepository
	rideRepo   repository.RideRepository
	notifier   *NotificationService
	now        func() time.Time
	logger     logrus.FieldLogger
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	geo GeoIndex,
	cacheStore redis.CacheStoreInterface,
	driverRepo repository.DriverRepository,
	rideRepo repository.RideRepository,
	notifier *NotificationService,
	logger logrus.FieldLogger,
) *DriverService {
	return &DriverService{
		geo:        geo,
		cacheStore: cacheStore,
		driverRepo: driverRepo,
		rideRepo:   rideRepo,
		notifier:   notifier,
		now:        time.Now,
		logger:     logger,
	}
}

// SetOnlineRequest contains the parameters for toggling availability.
type SetOnlineRequest struct {
	DriverID string
	Online   bool
	Location *domain.Point // Optional: seeds the geo index when going online
}

// SetOnline toggles the driver's availability. Going online requires verified
// KYC and an active subscription.
func (s *DriverService) SetOnline(ctx context.Context, req SetOnlineRequest) (*domain.Driver, error) {
	driver, err := s.driverRepo.GetByID(ctx, req.DriverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDriverOnly
	}
	if err != nil {
		return nil, fmt.Errorf("load driver: %w", err)
	}

	if req.Online {
		if !driver.KYCVerified {
			return nil, ErrKYCRequired
		}
		if !driver.SubscriptionActive(s.now()) {
			return nil, ErrSubscriptionRequired
		}
		if req.Location != nil && !isValidPoint(*req.Location) {
			return nil, ErrInvalidLocation
		}
	}

	if err := s.driverRepo.SetOnline(ctx, req.DriverID, req.Online); err != nil {
		return nil, fmt.Errorf("set online: %w", err)
	}
	driver.Online = req.Online

	if err := s.cacheStore.InvalidateDriver(ctx, req.DriverID); err != nil {
		s.logger.WithError(err).WithField("driver_id", req.DriverID).Warn("failed to invalidate driver cache")
	}

	switch {
	case req.Online && req.Location != nil:
		if err := s.geo.UpdateDriverLocation(ctx, req.DriverID, req.Location.Lat, req.Location.Lng); err != nil {
			s.logger.WithError(err).WithField("driver_id", req.DriverID).Warn("failed to index driver location")
		}
		driver.Lat, driver.Lng = req.Location.Lat, req.Location.Lng
	case !req.Online:
		if err := s.geo.RemoveDriver(ctx, req.DriverID); err != nil {
			s.logger.WithError(err).WithField("driver_id", req.DriverID).Warn("failed to drop driver location")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"driver_id": req.DriverID,
		"online":    req.Online,
	}).Info("driver availability changed")

	return driver, nil
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// UpdateLocation records the driver's position and relays it to the rider of
// their active ride. It is fire-and-forget: store failures are logged, not returned.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.DriverID == "" {
		return ErrDriverOnly
	}
	if !isValidPoint(domain.Point{Lat: req.Lat, Lng: req.Lng}) {
		return ErrInvalidLocation
	}

	log := s.logger.WithField("driver_id", req.DriverID)

	if err := s.geo.UpdateDriverLocation(ctx, req.DriverID, req.Lat, req.Lng); err != nil {
		log.WithError(err).Warn("dropped driver location update")
		return nil
	}

	ride, err := s.rideRepo.FindActiveByDriver(ctx, req.DriverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.WithError(err).Debug("active ride lookup failed")
		return nil
	}

	s.notifier.NotifyLocation(ctx, ride.RiderID, LocationPayload{
		RideID:   ride.ID,
		DriverID: req.DriverID,
		Lat:      req.Lat,
		Lng:      req.Lng,
		At:       s.now(),
	})
	return nil
}
