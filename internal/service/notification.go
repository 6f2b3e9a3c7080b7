package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/events"
)

// RideStatusPayload is a ride document with an optional human-readable note.
type RideStatusPayload struct {
	*domain.Ride
	Message string `json:"message,omitempty"`
}

// Redacted drops the one-time code and keeps the note.
func (p RideStatusPayload) Redacted() any {
	if p.Ride != nil {
		p.Ride = p.Ride.ForDriver()
	}
	return p
}

// OfferPayload is sent to the rider when a driver offers.
type OfferPayload struct {
	RideID string       `json:"rideId"`
	Offer  domain.Offer `json:"offer"`
}

// FareBoostPayload is broadcast when the rider raises the fare.
type FareBoostPayload struct {
	Type    string       `json:"type"`
	RideID  string       `json:"rideId"`
	NewFare float64      `json:"newFare"`
	Ride    *domain.Ride `json:"ride"`
}

// RideTakenPayload tells other drivers a ride is gone.
type RideTakenPayload struct {
	RideID string `json:"rideId"`
}

// CounterPayload is a rider's counter price sent to one driver.
type CounterPayload struct {
	RideID  string  `json:"rideId"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

// MessagePayload carries a chat line to the other party.
type MessagePayload struct {
	RideID  string         `json:"rideId"`
	Message domain.Message `json:"message"`
}

// LocationPayload relays the assigned driver's position to the rider.
type LocationPayload struct {
	RideID   string    `json:"rideId"`
	DriverID string    `json:"driverId"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	At       time.Time `json:"at"`
}

// SOSAlert is published to the admins room.
type SOSAlert struct {
	RideID    string       `json:"rideId"`
	UserID    string       `json:"userId"`
	Location  domain.Point `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
}

// NotificationService routes ride events to their audiences.
// Delivery is best effort: failures are logged, never returned.
type NotificationService struct {
	publisher events.Publisher
	logger    logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher events.Publisher, logger logrus.FieldLogger) *NotificationService {
	return &NotificationService{publisher: publisher, logger: logger}
}

// NotifyRideRequested sends the ride to the target drivers, or to everyone when there are none.
func (s *NotificationService) NotifyRideRequested(ctx context.Context, ride *domain.Ride, driverIDs []string) {
	payload := ride.ForDriver()
	if len(driverIDs) == 0 {
		s.broadcast(ctx, events.NewRideRequest, payload, ride.ID)
		return
	}
	for _, driverID := range driverIDs {
		s.publish(ctx, driverID, events.NewRideRequest, payload, ride.ID)
	}
}

// NotifyOffer tells the rider about a new or revised offer.
func (s *NotificationService) NotifyOffer(ctx context.Context, ride *domain.Ride, offer domain.Offer) {
	s.publish(ctx, ride.RiderID, events.NewOffer, OfferPayload{RideID: ride.ID, Offer: offer}, ride.ID)
}

// NotifyRideAccepted tells targetID that the ride is booked.
func (s *NotificationService) NotifyRideAccepted(ctx context.Context, ride *domain.Ride, targetID string) {
	s.publish(ctx, targetID, events.RideAccepted, viewFor(ride, targetID), ride.ID)
}

// NotifyRideTaken tells every driver the ride was taken.
func (s *NotificationService) NotifyRideTaken(ctx context.Context, rideID string) {
	s.broadcast(ctx, events.RideTaken, RideTakenPayload{RideID: rideID}, rideID)
}

// NotifyStatus sends the ride document to the rider, the assigned driver and any extra targets.
func (s *NotificationService) NotifyStatus(ctx context.Context, ride *domain.Ride, extraTargets ...string) {
	targets := append([]string{ride.RiderID, ride.DriverID}, extraTargets...)
	seen := make(map[string]bool, len(targets))
	for _, id := range targets {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s.publish(ctx, id, events.RideStatusUpdate, RideStatusPayload{Ride: viewFor(ride, id)}, ride.ID)
	}
}

// NotifyRequeued tells the rider their driver cancelled and the ride is searching again.
func (s *NotificationService) NotifyRequeued(ctx context.Context, ride *domain.Ride, formerDriverID string) {
	s.publish(ctx, ride.RiderID, events.RideStatusUpdate, RideStatusPayload{
		Ride:    ride,
		Message: "Driver cancelled. Searching for new driver...",
	}, ride.ID)
	if formerDriverID != "" {
		s.publish(ctx, formerDriverID, events.RideStatusUpdate, RideStatusPayload{Ride: ride.ForDriver()}, ride.ID)
	}
}

// NotifyScheduledDropped tells the rider a due scheduled ride was cancelled
// because they were already on another ride.
func (s *NotificationService) NotifyScheduledDropped(ctx context.Context, ride *domain.Ride) {
	s.publish(ctx, ride.RiderID, events.RideStatusUpdate, RideStatusPayload{
		Ride:    ride,
		Message: "Scheduled ride cancelled because you already have an active ride.",
	}, ride.ID)
}

// NotifyFareBoost broadcasts the raised fare to every driver.
func (s *NotificationService) NotifyFareBoost(ctx context.Context, ride *domain.Ride) {
	s.broadcast(ctx, events.RideUpdate, FareBoostPayload{
		Type:    "fare_boost",
		RideID:  ride.ID,
		NewFare: ride.Fare,
		Ride:    ride.ForDriver(),
	}, ride.ID)
}

// NotifyCounter sends the rider's counter price to one driver.
func (s *NotificationService) NotifyCounter(ctx context.Context, driverID string, payload CounterPayload) {
	s.publish(ctx, driverID, events.RiderCounter, payload, payload.RideID)
}

// NotifyMessage delivers a chat line to recipientID.
func (s *NotificationService) NotifyMessage(ctx context.Context, recipientID, rideID string, msg domain.Message) {
	s.publish(ctx, recipientID, events.NewMessage, MessagePayload{RideID: rideID, Message: msg}, rideID)
}

// NotifyLocation relays a driver position to the rider.
func (s *NotificationService) NotifyLocation(ctx context.Context, riderID string, payload LocationPayload) {
	s.publish(ctx, riderID, events.LocationUpdate, payload, payload.RideID)
}

// NotifySOS alerts every connected admin.
func (s *NotificationService) NotifySOS(ctx context.Context, alert SOSAlert) {
	s.publish(ctx, events.AdminsRoom, events.AdminSOSAlert, alert, alert.RideID)
}

func (s *NotificationService) publish(ctx context.Context, targetID, event string, payload any, rideID string) {
	if err := s.publisher.Publish(ctx, targetID, event, payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":   event,
			"target":  targetID,
			"ride_id": rideID,
		}).Warn("failed to publish event")
	}
}

func (s *NotificationService) broadcast(ctx context.Context, event string, payload any, rideID string) {
	if err := s.publisher.Broadcast(ctx, event, payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":   event,
			"ride_id": rideID,
		}).Warn("failed to broadcast event")
	}
}

// viewFor hides the one-time code from everyone but the rider.
func viewFor(ride *domain.Ride, userID string) *domain.Ride {
	if userID == ride.RiderID {
		return ride
	}
	return ride.ForDriver()
}
