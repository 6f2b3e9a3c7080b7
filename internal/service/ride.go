package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/redis"
	"ridedeck/internal/repository"
)

const (
	defaultHistoryLimit   = 10
	defaultAvailableLimit = 50
	defaultBookLockTTL    = 5 * time.Second
)

// ScheduledRideQueue defers the release of a scheduled ride until its pickup time.
type ScheduledRideQueue interface {
	EnqueueRelease(ctx context.Context, rideID string, at time.Time) error
}

// RideCoordinator orchestrates booking, negotiation, trip progress and
// settlement. It is the only entry point for ride mutations.
type RideCoordinator struct {
	rideRepo   repository.RideRepository
	userRepo   repository.UserRepository
	driverRepo repository.DriverRepository
	ledger     *NegotiationLedger
	dispatch   *DispatchRouter
	pricing    *FarePricingEngine
	settlement *SettlementService
	notifier   *NotificationService
	geo        GeoIndex
	locks      redis.LockStoreInterface
	queue      ScheduledRideQueue
	validate   *validator.Validate
	lockTTL    time.Duration
	now        func() time.Time
	logger     logrus.FieldLogger
}

// RideCoordinatorDeps groups the collaborators of a RideCoordinator.
// Locks and Queue are optional.
type RideCoordinatorDeps struct {
	Rides       repository.RideRepository
	Users       repository.UserRepository
	Drivers     repository.DriverRepository
	Ledger      *NegotiationLedger
	Dispatch    *DispatchRouter
	Pricing     *FarePricingEngine
	Settlement  *SettlementService
	Notifier    *NotificationService
	Geo         GeoIndex
	Locks       redis.LockStoreInterface
	Queue       ScheduledRideQueue
	BookLockTTL time.Duration
	Logger      logrus.FieldLogger
}

// NewRideCoordinator creates a new RideCoordinator.
func NewRideCoordinator(deps RideCoordinatorDeps) *RideCoordinator {
	lockTTL := deps.BookLockTTL
	if lockTTL <= 0 {
		lockTTL = defaultBookLockTTL
	}
	return &RideCoordinator{
		rideRepo:   deps.Rides,
		userRepo:   deps.Users,
		driverRepo: deps.Drivers,
		ledger:     deps.Ledger,
		dispatch:   deps.Dispatch,
		pricing:    deps.Pricing,
		settlement: deps.Settlement,
		notifier:   deps.Notifier,
		geo:        deps.Geo,
		locks:      deps.Locks,
		queue:      deps.Queue,
		validate:   validator.New(),
		lockTTL:    lockTTL,
		now:        time.Now,
		logger:     deps.Logger,
	}
}

// BookRequest contains the parameters for booking a ride.
type BookRequest struct {
	RiderID         string               `validate:"required"`
	Pickup          domain.Point
	Dropoff         domain.Point
	Stops           []domain.Point       `validate:"max=5"`
	VehicleType     domain.VehicleType   `validate:"required,oneof=go premier xl auto bike"`
	PaymentMethod   domain.PaymentMethod `validate:"omitempty,oneof=cash wallet"`
	Fare            float64              `validate:"gt=0"`
	MinPrice        float64              `validate:"gte=0"`
	MaxPrice        float64              `validate:"gte=0"`
	IsDelivery      bool
	DeliveryDetails *domain.DeliveryDetails
}

// ScheduleRequest contains the parameters for booking a ride in advance.
type ScheduleRequest struct {
	BookRequest
	ScheduledTime time.Time `validate:"required"`
}

// Book creates a searching ride and advertises it to nearby drivers.
func (s *RideCoordinator) Book(ctx context.Context, req BookRequest) (*domain.Ride, error) {
	if err := s.validateBooking(req); err != nil {
		return nil, err
	}

	log := s.logger.WithField("rider_id", req.RiderID)

	if s.locks != nil {
		token, ok, err := s.locks.AcquireRiderLock(ctx, req.RiderID, s.lockTTL)
		switch {
		case err != nil:
			log.WithError(err).Warn("rider lock unavailable, relying on store constraint")
		case !ok:
			return nil, ErrConflictRetryable
		default:
			defer func() {
				if err := s.locks.ReleaseRiderLock(ctx, req.RiderID, token); err != nil {
					log.WithError(err).Warn("failed to release rider lock")
				}
			}()
		}
	}

	if err := s.ensureNoActiveRide(ctx, req.RiderID); err != nil {
		return nil, err
	}

	if err := s.ensureWalletCovers(ctx, req); err != nil {
		return nil, err
	}

	ride, err := s.newRide(req, domain.RideStatusSearching)
	if err != nil {
		return nil, err
	}

	plan := s.dispatch.Plan(ctx, ride)
	ride.SponsoredBy = plan.SponsoredBy

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, translateRideError(err)
	}

	s.track(ctx, ride)
	s.dispatch.Announce(ctx, ride, plan)

	log.WithFields(logrus.Fields{
		"ride_id":      ride.ID,
		"vehicle_type": ride.VehicleType,
		"targets":      len(plan.DriverIDs),
	}).Info("ride booked")

	return ride, nil
}

// Schedule stores a ride for later and queues its release at the scheduled time.
func (s *RideCoordinator) Schedule(ctx context.Context, req ScheduleRequest) (*domain.Ride, error) {
	if err := s.validateBooking(req.BookRequest); err != nil {
		return nil, err
	}
	if !req.ScheduledTime.After(s.now()) {
		return nil, ErrInvalidScheduleTime
	}

	ride, err := s.newRide(req.BookRequest, domain.RideStatusScheduled)
	if err != nil {
		return nil, err
	}
	at := req.ScheduledTime.UTC()
	ride.IsScheduled = true
	ride.ScheduledTime = &at

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, translateRideError(err)
	}

	log := s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "rider_id": ride.RiderID})
	if s.queue == nil {
		log.Warn("no scheduler configured, ride will be released by the due-ride sweep")
	} else if err := s.queue.EnqueueRelease(ctx, ride.ID, at); err != nil {
		log.WithError(err).Error("failed to enqueue scheduled ride release")
	}

	log.WithField("scheduled_time", at).Info("ride scheduled")
	return ride, nil
}

// ReleaseScheduledRide moves a due scheduled ride into live dispatch.
// Rides that were cancelled or already released are left alone. A ride whose
// rider is already on another ride is cancelled and the rider is told.
func (s *RideCoordinator) ReleaseScheduledRide(ctx context.Context, rideID string) error {
	_, err := s.releaseScheduled(ctx, rideID)
	return err
}

// releaseScheduled reports whether the ride went live.
func (s *RideCoordinator) releaseScheduled(ctx context.Context, rideID string) (bool, error) {
	ride, err := s.ledger.Get(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ride.Status != domain.RideStatusScheduled {
		return false, nil
	}

	plan := s.dispatch.Plan(ctx, ride)
	released, err := s.ledger.Release(ctx, rideID, plan.SponsoredBy)
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return false, nil
	case errors.Is(err, ErrActiveRideExists):
		return false, s.dropScheduled(ctx, rideID)
	case err != nil:
		return false, err
	}

	s.track(ctx, released)
	s.dispatch.Announce(ctx, released, plan)

	s.logger.WithField("ride_id", rideID).Info("scheduled ride released")
	return true, nil
}

func (s *RideCoordinator) dropScheduled(ctx context.Context, rideID string) error {
	cancelled, err := s.ledger.CancelScheduled(ctx, rideID)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	s.notifier.NotifyScheduledDropped(ctx, cancelled)
	s.logger.WithFields(logrus.Fields{
		"ride_id":  rideID,
		"rider_id": cancelled.RiderID,
	}).Warn("scheduled ride cancelled, rider already has an active ride")
	return nil
}

// ReleaseDueRides releases every scheduled ride whose time has come. It
// catches up on releases missed while no worker was running.
func (s *RideCoordinator) ReleaseDueRides(ctx context.Context, limit int) (int, error) {
	rides, err := s.rideRepo.ListByStatus(ctx, domain.RideStatusScheduled, limit)
	if err != nil {
		return 0, fmt.Errorf("list scheduled rides: %w", err)
	}

	now := s.now()
	released := 0
	for _, ride := range rides {
		if ride.ScheduledTime == nil || ride.ScheduledTime.After(now) {
			continue
		}
		live, err := s.releaseScheduled(ctx, ride.ID)
		if err != nil {
			s.logger.WithError(err).WithField("ride_id", ride.ID).Warn("failed to release due ride")
			continue
		}
		if live {
			released++
		}
	}
	return released, nil
}

// Estimate prices the trip for every vehicle class.
func (s *RideCoordinator) Estimate(ctx context.Context, req EstimateRequest) (*FareEstimate, error) {
	return s.pricing.Estimate(ctx, req)
}

// OfferRequest contains a driver's price proposal.
type OfferRequest struct {
	RideID   string  `validate:"required"`
	DriverID string  `validate:"required"`
	Amount   float64 `validate:"gt=0"`
	ETA      int     `validate:"gte=0"`
}

// RecordOffer adds or replaces the driver's offer and notifies the rider.
func (s *RideCoordinator) RecordOffer(ctx context.Context, req OfferRequest) (*domain.Ride, domain.Offer, error) {
	if err := s.check(req); err != nil {
		return nil, domain.Offer{}, err
	}

	driver, err := s.requireOnDuty(ctx, req.DriverID)
	if err != nil {
		return nil, domain.Offer{}, err
	}

	offer := domain.Offer{
		DriverID:      driver.ID,
		Amount:        req.Amount,
		ETA:           req.ETA,
		DriverName:    driver.Name,
		Rating:        driver.Rating,
		VehicleType:   driver.VehicleType,
		VehicleNumber: driver.VehicleNumber,
		CreatedAt:     s.now(),
	}

	ride, err := s.ledger.RecordOffer(ctx, req.RideID, offer)
	if err != nil {
		return nil, domain.Offer{}, err
	}

	// Negotiating rides no longer count as unserved demand.
	s.untrack(ctx, ride.ID)
	s.notifier.NotifyOffer(ctx, ride, offer)
	return ride.ForDriver(), offer, nil
}

// DriverAccept books a searching ride for the driver at the rider's fare.
func (s *RideCoordinator) DriverAccept(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if _, err := s.requireOnDuty(ctx, driverID); err != nil {
		return nil, err
	}
	if err := s.ensureDriverFree(ctx, driverID); err != nil {
		return nil, err
	}

	ride, err := s.ledger.DriverAccept(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}

	s.untrack(ctx, ride.ID)
	s.notifier.NotifyRideAccepted(ctx, ride, ride.RiderID)
	s.notifier.NotifyRideTaken(ctx, ride.ID)

	s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "driver_id": driverID}).Info("ride accepted by driver")
	return ride.ForDriver(), nil
}

// AcceptOfferRequest contains the rider's choice of offer.
type AcceptOfferRequest struct {
	RideID   string  `validate:"required"`
	RiderID  string  `validate:"required"`
	DriverID string  `validate:"required"`
	Amount   float64 `validate:"gt=0"`
}

// AcceptOffer books the ride with the chosen driver at the agreed amount.
func (s *RideCoordinator) AcceptOffer(ctx context.Context, req AcceptOfferRequest) (*domain.Ride, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.ensureDriverAvailable(ctx, req.DriverID); err != nil {
		return nil, err
	}

	ride, err := s.ledger.AcceptOffer(ctx, req.RideID, req.RiderID, req.DriverID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.untrack(ctx, ride.ID)
	s.notifier.NotifyRideAccepted(ctx, ride, req.DriverID)
	s.notifier.NotifyRideTaken(ctx, ride.ID)

	s.logger.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": req.DriverID,
		"fare":      ride.Fare,
	}).Info("offer accepted")
	return ride, nil
}

// BoostFare raises the rider's fare and re-advertises the ride.
func (s *RideCoordinator) BoostFare(ctx context.Context, rideID, riderID string, increment float64) (*domain.Ride, error) {
	if increment <= 0 || math.IsInf(increment, 0) || math.IsNaN(increment) {
		return nil, ErrInvalidAmount
	}

	ride, err := s.ledger.BoostFare(ctx, rideID, riderID, increment)
	if err != nil {
		return nil, err
	}

	s.dispatch.BroadcastBoost(ctx, ride)
	return ride, nil
}

// CounterRequest contains a rider's counter price for one driver.
type CounterRequest struct {
	RideID   string  `validate:"required"`
	RiderID  string  `validate:"required"`
	DriverID string  `validate:"required"`
	Amount   float64 `validate:"gt=0"`
}

// Counter sends the rider's counter price to one driver. The ride is not modified.
func (s *RideCoordinator) Counter(ctx context.Context, req CounterRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	ride, err := s.ledger.Get(ctx, req.RideID)
	if err != nil {
		return err
	}
	if ride.RiderID != req.RiderID {
		return ErrNotAuthorized
	}
	if !ride.Status.IsOpen() {
		return ErrRideNotActive
	}

	s.notifier.NotifyCounter(ctx, req.DriverID, CounterPayload{
		RideID:  ride.ID,
		Amount:  req.Amount,
		Message: fmt.Sprintf("Rider countered: ₹%g", req.Amount),
	})
	return nil
}

// StatusRequest contains a lifecycle status change.
type StatusRequest struct {
	RideID      string
	ActorID     string
	Role        domain.Role
	Status      domain.RideStatus
	OTP         string
	SponsoredBy string
}

// UpdateStatus advances the ride through arrival, start, completion or cancellation.
func (s *RideCoordinator) UpdateStatus(ctx context.Context, req StatusRequest) (*domain.Ride, error) {
	var (
		ride *domain.Ride
		err  error
	)

	switch req.Status {
	case domain.RideStatusArrived:
		ride, err = s.ledger.MarkArrived(ctx, req.RideID, req.ActorID)
	case domain.RideStatusStarted:
		ride, err = s.ledger.StartRide(ctx, req.RideID, req.ActorID, req.OTP)
	case domain.RideStatusCompleted:
		ride, err = s.complete(ctx, req.RideID, req.ActorID, req.SponsoredBy)
	case domain.RideStatusCancelled:
		return s.Cancel(ctx, req.RideID, req.ActorID, req.Role)
	default:
		return nil, fmt.Errorf("%w: unsupported status %q", ErrValidation, req.Status)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyStatus(ctx, ride)

	s.logger.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": ride.DriverID,
		"status":    ride.Status,
	}).Info("ride status updated")
	return viewFor(ride, req.ActorID), nil
}

// complete claims the ride, settles it and then marks it completed. A failed
// settlement releases the claim and leaves the ride started; a retried
// completion does not charge twice.
func (s *RideCoordinator) complete(ctx context.Context, rideID, driverID, sponsoredBy string) (*domain.Ride, error) {
	claimed, err := s.ledger.ClaimSettlement(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	claim := *claimed.SettlingSince
	log := s.logger.WithFields(logrus.Fields{"ride_id": rideID, "driver_id": driverID})

	sponsored := sponsoredBy != "" || claimed.SponsoredBy != ""
	split, err := s.settlement.Settle(ctx, claimed, sponsored)
	if err != nil {
		if releaseErr := s.ledger.ReleaseSettlement(ctx, rideID, claim); releaseErr != nil {
			log.WithError(releaseErr).Error("failed to release settlement claim")
		}
		return nil, err
	}

	ride, err := s.ledger.Complete(ctx, rideID, driverID, claim, split)
	if err != nil {
		log.WithError(err).Error("ride settled but not marked completed")
		return nil, err
	}
	return ride, nil
}

// Cancel ends the ride, or re-queues it when the assigned driver backs out.
func (s *RideCoordinator) Cancel(ctx context.Context, rideID, actorID string, role domain.Role) (*domain.Ride, error) {
	outcome, err := s.ledger.Cancel(ctx, rideID, actorID, role)
	if err != nil {
		return nil, err
	}
	ride := outcome.Ride

	log := s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "actor_id": actorID})
	if outcome.Requeued {
		s.track(ctx, ride)
		s.dispatch.Requeue(ctx, ride)
		s.notifier.NotifyRequeued(ctx, ride, outcome.FormerDriverID)
		log.Info("driver cancelled, ride re-queued")
		return ride.ForDriver(), nil
	}

	s.untrack(ctx, ride.ID)
	s.notifier.NotifyStatus(ctx, ride, outcome.FormerDriverID)
	log.Info("ride cancelled")
	return viewFor(ride, actorID), nil
}

// SendMessage appends a chat line and forwards it to the other party.
func (s *RideCoordinator) SendMessage(ctx context.Context, rideID, senderID, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > 1000 {
		return domain.Message{}, fmt.Errorf("%w: message text must be 1-1000 characters", ErrValidation)
	}

	ride, msg, err := s.ledger.AppendMessage(ctx, rideID, senderID, text)
	if err != nil {
		return domain.Message{}, err
	}

	recipient := ride.DriverID
	if senderID != ride.RiderID {
		recipient = ride.RiderID
	}
	if recipient != "" {
		s.notifier.NotifyMessage(ctx, recipient, ride.ID, msg)
	}
	return msg, nil
}

// Rate records one party's rating of the other on a completed ride.
func (s *RideCoordinator) Rate(ctx context.Context, rideID, raterID string, rating int) (*domain.Ride, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	ride, ratedID, err := s.ledger.Rate(ctx, rideID, raterID, rating)
	if err != nil {
		return nil, err
	}

	if ratedID != "" {
		if err := s.userRepo.ApplyRating(ctx, ratedID, rating); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"ride_id": rideID,
				"user_id": ratedID,
			}).Error("failed to update user rating")
		}
	}
	return viewFor(ride, raterID), nil
}

// RaiseSOS flags the ride as an emergency and alerts admins.
func (s *RideCoordinator) RaiseSOS(ctx context.Context, rideID, userID string, location *domain.Point) (*domain.Ride, error) {
	ride, err := s.ledger.RaiseSOS(ctx, rideID, userID)
	if err != nil {
		return nil, err
	}

	at := ride.Pickup
	if location != nil && isValidPoint(*location) {
		at = *location
	}
	s.notifier.NotifySOS(ctx, SOSAlert{
		RideID:    ride.ID,
		UserID:    userID,
		Location:  at,
		Timestamp: s.now(),
	})

	s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "user_id": userID}).Warn("SOS raised")
	return viewFor(ride, userID), nil
}

// CurrentRide returns the caller's active ride, or nil.
func (s *RideCoordinator) CurrentRide(ctx context.Context, userID string, role domain.Role) (*domain.Ride, error) {
	var (
		ride *domain.Ride
		err  error
	)
	if role == domain.RoleDriver {
		ride, err = s.rideRepo.FindActiveByDriver(ctx, userID)
	} else {
		ride, err = s.rideRepo.FindActiveByRider(ctx, userID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateRideError(err)
	}
	return viewFor(ride, userID), nil
}

// ListAvailable returns searching rides, nearest first when near is set.
func (s *RideCoordinator) ListAvailable(ctx context.Context, near *domain.Point, limit int) ([]*domain.Ride, error) {
	if limit <= 0 {
		limit = defaultAvailableLimit
	}

	rides, err := s.rideRepo.ListByStatus(ctx, domain.RideStatusSearching, limit)
	if err != nil {
		return nil, translateRideError(err)
	}

	if near != nil {
		sort.SliceStable(rides, func(i, j int) bool {
			di := coordinateDistance(rides[i].Pickup.Lat, rides[i].Pickup.Lng, near.Lat, near.Lng)
			dj := coordinateDistance(rides[j].Pickup.Lat, rides[j].Pickup.Lng, near.Lat, near.Lng)
			return di < dj
		})
	}

	out := make([]*domain.Ride, len(rides))
	for i, ride := range rides {
		out[i] = ride.ForDriver()
	}
	return out, nil
}

// HistoryPage is one page of a user's rides.
type HistoryPage struct {
	Rides       []*domain.Ride `json:"rides"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalRides  int            `json:"totalRides"`
}

// History returns the caller's rides, newest first.
func (s *RideCoordinator) History(ctx context.Context, userID string, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}

	rides, total, err := s.rideRepo.ListByParty(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, translateRideError(err)
	}

	views := make([]*domain.Ride, len(rides))
	for i, ride := range rides {
		views[i] = viewFor(ride, userID)
	}

	return &HistoryPage{
		Rides:       views,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalRides:  total,
	}, nil
}

// Get returns a ride to one of its parties or an admin.
func (s *RideCoordinator) Get(ctx context.Context, rideID, userID string, role domain.Role) (*domain.Ride, error) {
	ride, err := s.ledger.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && !ride.IsParty(userID) {
		return nil, ErrNotAuthorized
	}
	return viewFor(ride, userID), nil
}

func (s *RideCoordinator) validateBooking(req BookRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if !isValidPoint(req.Pickup) || !isValidPoint(req.Dropoff) {
		return ErrInvalidLocation
	}
	for _, stop := range req.Stops {
		if !isValidPoint(stop) {
			return ErrInvalidLocation
		}
	}
	if req.MaxPrice > 0 && req.MinPrice > req.MaxPrice {
		return fmt.Errorf("%w: minPrice exceeds maxPrice", ErrValidation)
	}
	return nil
}

func (s *RideCoordinator) newRide(req BookRequest, status domain.RideStatus) (*domain.Ride, error) {
	otp, err := generateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.PaymentMethodCash
	}

	now := s.now()
	ride := &domain.Ride{
		ID:            newID(),
		RiderID:       req.RiderID,
		Pickup:        req.Pickup,
		Stops:         req.Stops,
		Dropoff:       req.Dropoff,
		VehicleType:   req.VehicleType,
		PaymentMethod: paymentMethod,
		RiderOffer:    req.Fare,
		Fare:          req.Fare,
		MinPrice:      req.MinPrice,
		MaxPrice:      req.MaxPrice,
		Offers:        []domain.Offer{},
		Status:        status,
		SafetyStatus:  domain.SafetyStatusNormal,
		OTP:           otp,
		IsDelivery:    req.IsDelivery,
		Messages:      []domain.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IsDelivery && req.DeliveryDetails != nil {
		details := *req.DeliveryDetails
		ride.DeliveryDetails = &details
	}
	return ride, nil
}

func (s *RideCoordinator) ensureNoActiveRide(ctx context.Context, riderID string) error {
	_, err := s.rideRepo.FindActiveByRider(ctx, riderID)
	switch {
	case err == nil:
		return ErrActiveRideExists
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return translateRideError(err)
	}
}

func (s *RideCoordinator) ensureDriverFree(ctx context.Context, driverID string) error {
	_, err := s.rideRepo.FindActiveByDriver(ctx, driverID)
	switch {
	case err == nil:
		return ErrDriverBusy
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return translateRideError(err)
	}
}

// ensureDriverAvailable checks that a driver chosen by the rider can still be booked.
func (s *RideCoordinator) ensureDriverAvailable(ctx context.Context, driverID string) error {
	if _, err := s.requireOnDuty(ctx, driverID); err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return ErrDriverUnavailable
		}
		return err
	}
	if err := s.ensureDriverFree(ctx, driverID); errors.Is(err, ErrDriverBusy) {
		return ErrDriverUnavailable
	} else if err != nil {
		return err
	}
	return nil
}

// ensureWalletCovers rejects wallet bookings the rider cannot currently afford.
// Settlement repeats the check atomically.
func (s *RideCoordinator) ensureWalletCovers(ctx context.Context, req BookRequest) error {
	if req.PaymentMethod != domain.PaymentMethodWallet {
		return nil
	}

	rider, err := s.userRepo.GetByID(ctx, req.RiderID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("load rider: %w", err)
	}
	if rider.WalletBalance < req.Fare {
		return ErrInsufficientBalance
	}
	return nil
}

// requireOnDuty loads the driver and checks they may take rides now.
func (s *RideCoordinator) requireOnDuty(ctx context.Context, driverID string) (*domain.Driver, error) {
	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDriverOnly
	}
	if err != nil {
		return nil, fmt.Errorf("load driver: %w", err)
	}
	if !driver.SubscriptionActive(s.now()) {
		return nil, ErrSubscriptionRequired
	}
	if !driver.Online {
		return nil, ErrDriverOffline
	}
	return driver, nil
}

func (s *RideCoordinator) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *RideCoordinator) track(ctx context.Context, ride *domain.Ride) {
	if err := s.geo.TrackSearchingRide(ctx, ride); err != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID).Warn("failed to index searching ride")
	}
}

func (s *RideCoordinator) untrack(ctx context.Context, rideID string) {
	if err := s.geo.UntrackSearchingRide(ctx, rideID); err != nil {
		s.logger.WithError(err).WithField("ride_id", rideID).Warn("failed to drop searching ride")
	}
}

// validationError flattens validator output into a single VALIDATION_ERROR.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

func newID() string {
	return uuid.New().String()
}
