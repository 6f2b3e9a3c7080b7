package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// settlementLease bounds how long a completion may hold a ride while settling.
const settlementLease = 2 * time.Minute

var errClaimLost = errors.New("settlement claim lost")

// NegotiationLedger owns a ride's offers and status transitions. Every
// mutation is a versioned read-modify-write retried on conflict.
type NegotiationLedger struct {
	rideRepo   repository.RideRepository
	maxRetries int
	now        func() time.Time
	logger     logrus.FieldLogger
}

// NewNegotiationLedger creates a new NegotiationLedger.
func NewNegotiationLedger(rideRepo repository.RideRepository, maxRetries int, logger logrus.FieldLogger) *NegotiationLedger {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &NegotiationLedger{
		rideRepo:   rideRepo,
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     logger,
	}
}

// Get loads a ride.
func (l *NegotiationLedger) Get(ctx context.Context, rideID string) (*domain.Ride, error) {
	ride, err := l.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, translateRideError(err)
	}
	return ride, nil
}

// mutate applies fn to the latest ride version and writes it back, retrying
// when another writer got there first. fn must be free of side effects.
func (l *NegotiationLedger) mutate(ctx context.Context, rideID string, fn func(ride *domain.Ride) error) (*domain.Ride, error) {
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		ride, err := l.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, translateRideError(err)
		}

		if err := fn(ride); err != nil {
			return nil, err
		}
		ride.UpdatedAt = l.now()

		err = l.rideRepo.Update(ctx, ride)
		if err == nil {
			return ride, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, translateRideError(err)
		}

		l.logger.WithFields(logrus.Fields{
			"ride_id": rideID,
			"attempt": attempt + 1,
		}).Debug("ride version conflict, retrying")
	}

	return nil, ErrConflictRetryable
}

// RecordOffer upserts the driver's offer and moves the ride to negotiating.
func (l *NegotiationLedger) RecordOffer(ctx context.Context, rideID string, offer domain.Offer) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if !ride.Status.IsOpen() {
			return ErrRideNotOpen
		}
		ride.UpsertOffer(offer)
		ride.Status = domain.RideStatusNegotiating
		return nil
	})
}

// AcceptOffer books the ride with driverID at amount. The amount must match an
// offer from that driver, or equal the rider's own ask.
func (l *NegotiationLedger) AcceptOffer(ctx context.Context, rideID, riderID, driverID string, amount float64) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if ride.RiderID != riderID {
			return ErrNotAuthorized
		}
		if !ride.Status.IsOpen() {
			return ErrRideNotOpen
		}
		if _, ok := ride.FindOffer(driverID, amount); !ok && amount != ride.RiderOffer {
			return ErrOfferMismatch
		}

		ride.DriverID = driverID
		ride.Fare = amount
		ride.Offers = []domain.Offer{}
		ride.Status = domain.RideStatusBooked
		return nil
	})
}

// DriverAccept books a searching ride for the driver at the current fare.
func (l *NegotiationLedger) DriverAccept(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if ride.Status != domain.RideStatusSearching {
			return ErrRideNotOpen
		}
		if ride.RiderID == driverID {
			return ErrNotAuthorized
		}

		ride.DriverID = driverID
		ride.Offers = []domain.Offer{}
		ride.Status = domain.RideStatusBooked
		return nil
	})
}

// BoostFare raises the fare and the rider's baseline ask. Offers are kept.
func (l *NegotiationLedger) BoostFare(ctx context.Context, rideID, riderID string, increment float64) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if ride.RiderID != riderID {
			return ErrNotAuthorized
		}
		if !ride.Status.IsOpen() {
			return ErrRideNotActive
		}
		ride.Fare += increment
		ride.RiderOffer += increment
		return nil
	})
}

// MarkArrived records that the assigned driver reached pickup.
func (l *NegotiationLedger) MarkArrived(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if err := transitionByDriver(ride, driverID, domain.RideStatusArrived); err != nil {
			return err
		}
		ride.Status = domain.RideStatusArrived
		return nil
	})
}

// StartRide begins the trip once the rider's one-time code is presented.
func (l *NegotiationLedger) StartRide(ctx context.Context, rideID, driverID, code string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if err := transitionByDriver(ride, driverID, domain.RideStatusStarted); err != nil {
			return err
		}
		if !otpMatches(ride.OTP, strings.TrimSpace(code)) {
			return ErrInvalidOTP
		}
		ride.Status = domain.RideStatusStarted
		return nil
	})
}

// ClaimSettlement fences the ride for the completing driver before any money
// moves. Cancels and competing completions are refused while the claim holds;
// a claim older than settlementLease may be taken over.
func (l *NegotiationLedger) ClaimSettlement(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if err := transitionByDriver(ride, driverID, domain.RideStatusCompleted); err != nil {
			return err
		}
		now := l.now().UTC().Truncate(time.Microsecond)
		if settling(ride, now) {
			return ErrSettlementInProgress
		}
		ride.SettlingSince = &now
		return nil
	})
}

// ReleaseSettlement drops the claim taken at claim after a failed settlement.
// A claim that was already taken over is left alone.
func (l *NegotiationLedger) ReleaseSettlement(ctx context.Context, rideID string, claim time.Time) error {
	_, err := l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if !holdsClaim(ride, claim) {
			return errClaimLost
		}
		ride.SettlingSince = nil
		return nil
	})
	if errors.Is(err, errClaimLost) {
		return nil
	}
	return err
}

// Complete freezes the fare split and ends the ride. The caller must still
// hold the settlement claim taken at claim.
func (l *NegotiationLedger) Complete(ctx context.Context, rideID, driverID string, claim time.Time, split domain.FareSplit) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if err := transitionByDriver(ride, driverID, domain.RideStatusCompleted); err != nil {
			return err
		}
		if !holdsClaim(ride, claim) {
			return ErrSettlementInProgress
		}
		s := split
		ride.FareSplit = &s
		ride.Status = domain.RideStatusCompleted
		ride.SettlingSince = nil
		return nil
	})
}

// CancelOutcome describes what a cancel did to the ride.
type CancelOutcome struct {
	Ride *domain.Ride
	// Requeued is set when the assigned driver backed out and the ride is searching again.
	Requeued bool
	// FormerDriverID is the driver that was assigned before the cancel.
	FormerDriverID string
}

// Cancel ends the ride, or returns it to the pool when its assigned driver backs out.
func (l *NegotiationLedger) Cancel(ctx context.Context, rideID, actorID string, role domain.Role) (*CancelOutcome, error) {
	outcome := &CancelOutcome{}

	ride, err := l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		outcome.Requeued = false
		outcome.FormerDriverID = ride.DriverID

		if ride.Status.IsTerminal() {
			return ErrInvalidTransition
		}
		// Past an expired claim only admins may cancel, since money may have moved.
		if ride.SettlingSince != nil && (role != domain.RoleAdmin || settling(ride, l.now())) {
			return ErrSettlementInProgress
		}

		switch {
		case actorID != "" && actorID == ride.DriverID:
			if !domain.CanTransition(ride.Status, domain.RideStatusSearching) {
				return ErrInvalidTransition
			}
			ride.Status = domain.RideStatusSearching
			ride.DriverID = ""
			ride.Offers = []domain.Offer{}
			outcome.Requeued = true
		case actorID == ride.RiderID || role == domain.RoleAdmin:
			ride.Status = domain.RideStatusCancelled
			ride.DriverID = ""
		default:
			return ErrNotAuthorized
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome.Ride = ride
	return outcome, nil
}

// AppendMessage adds a chat line from one of the ride's parties.
func (l *NegotiationLedger) AppendMessage(ctx context.Context, rideID, senderID, text string) (*domain.Ride, domain.Message, error) {
	msg := domain.Message{
		ID:       newID(),
		SenderID: senderID,
		Text:     text,
	}

	ride, err := l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if !ride.IsParty(senderID) {
			return ErrNotAuthorized
		}
		msg.Timestamp = l.now()
		ride.Messages = append(ride.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, domain.Message{}, err
	}
	return ride, msg, nil
}

// Rate records one party's rating of the other and returns the rated user's id.
func (l *NegotiationLedger) Rate(ctx context.Context, rideID, raterID string, rating int) (*domain.Ride, string, error) {
	var ratedID string

	ride, err := l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if !ride.IsParty(raterID) {
			return ErrNotAuthorized
		}
		if ride.Status != domain.RideStatusCompleted {
			return ErrRideNotCompleted
		}

		if raterID == ride.RiderID {
			if ride.DriverRating != 0 {
				return ErrAlreadyRated
			}
			ride.DriverRating = rating
			ratedID = ride.DriverID
		} else {
			if ride.RiderRating != 0 {
				return ErrAlreadyRated
			}
			ride.RiderRating = rating
			ratedID = ride.RiderID
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return ride, ratedID, nil
}

// RaiseSOS flags the ride as an emergency.
func (l *NegotiationLedger) RaiseSOS(ctx context.Context, rideID, userID string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if !ride.IsParty(userID) {
			return ErrNotAuthorized
		}
		ride.SafetyStatus = domain.SafetyStatusEmergency
		return nil
	})
}

// Release moves a scheduled ride into live search.
func (l *NegotiationLedger) Release(ctx context.Context, rideID, sponsoredBy string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if ride.Status != domain.RideStatusScheduled {
			return ErrInvalidTransition
		}
		ride.Status = domain.RideStatusSearching
		if sponsoredBy != "" {
			ride.SponsoredBy = sponsoredBy
		}
		return nil
	})
}

// settling reports whether a completion holds an unexpired settlement claim.
func settling(ride *domain.Ride, now time.Time) bool {
	return ride.SettlingSince != nil && now.Sub(*ride.SettlingSince) < settlementLease
}

func holdsClaim(ride *domain.Ride, claim time.Time) bool {
	return ride.SettlingSince != nil && ride.SettlingSince.Equal(claim)
}

// CancelScheduled cancels a scheduled ride that can no longer be released.
func (l *NegotiationLedger) CancelScheduled(ctx context.Context, rideID string) (*domain.Ride, error) {
	return l.mutate(ctx, rideID, func(ride *domain.Ride) error {
		if ride.Status != domain.RideStatusScheduled {
			return ErrInvalidTransition
		}
		ride.Status = domain.RideStatusCancelled
		return nil
	})
}

// transitionByDriver checks that driverID is assigned and the move is legal.
func transitionByDriver(ride *domain.Ride, driverID string, to domain.RideStatus) error {
	if ride.DriverID == "" || ride.DriverID != driverID {
		return ErrNotAuthorized
	}
	if !domain.CanTransition(ride.Status, to) {
		return ErrInvalidTransition
	}
	return nil
}

func translateRideError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRideNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrActiveRideExists
	case errors.Is(err, repository.ErrVersionConflict):
		return ErrConflictRetryable
	default:
		return fmt.Errorf("ride store: %w", err)
	}
}
