package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusSearching   RideStatus = "searching"
	RideStatusNegotiating RideStatus = "negotiating"
	RideStatusBooked      RideStatus = "booked"
	RideStatusArrived     RideStatus = "arrived"
	RideStatusStarted     RideStatus = "started"
	RideStatusCompleted   RideStatus = "completed"
	RideStatusCancelled   RideStatus = "cancelled"
	RideStatusScheduled   RideStatus = "scheduled"
)

// SafetyStatus represents the safety state of a ride.
type SafetyStatus string

const (
	SafetyStatusNormal    SafetyStatus = "normal"
	SafetyStatusAnomaly   SafetyStatus = "anomaly"
	SafetyStatusEmergency SafetyStatus = "emergency"
)

// VehicleType is the vehicle class a rider requests.
type VehicleType string

const (
	VehicleTypeGo      VehicleType = "go"
	VehicleTypePremier VehicleType = "premier"
	VehicleTypeXL      VehicleType = "xl"
	VehicleTypeAuto    VehicleType = "auto"
	VehicleTypeBike    VehicleType = "bike"
	VehicleTypeCab     VehicleType = "cab"
)

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// ActiveRideStatuses are the statuses that count toward a rider's single active ride.
var ActiveRideStatuses = []RideStatus{
	RideStatusSearching,
	RideStatusNegotiating,
	RideStatusBooked,
	RideStatusArrived,
	RideStatusStarted,
}

// DriverActiveRideStatuses are the statuses in which a driver is bound to a ride.
var DriverActiveRideStatuses = []RideStatus{
	RideStatusBooked,
	RideStatusArrived,
	RideStatusStarted,
}

// AllowedTransitions is the ride state machine.
var AllowedTransitions = map[RideStatus][]RideStatus{
	RideStatusScheduled:   {RideStatusSearching, RideStatusCancelled},
	RideStatusSearching:   {RideStatusNegotiating, RideStatusBooked, RideStatusCancelled},
	RideStatusNegotiating: {RideStatusNegotiating, RideStatusBooked, RideStatusCancelled},
	RideStatusBooked:      {RideStatusArrived, RideStatusSearching, RideStatusCancelled},
	RideStatusArrived:     {RideStatusStarted, RideStatusSearching, RideStatusCancelled},
	RideStatusStarted:     {RideStatusCompleted, RideStatusSearching, RideStatusCancelled},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsOpen reports whether the ride still accepts offers and fare changes.
func (s RideStatus) IsOpen() bool {
	return s == RideStatusSearching || s == RideStatusNegotiating
}

// IsActive reports whether the status counts toward the single active ride rule.
func (s RideStatus) IsActive() bool {
	for _, active := range ActiveRideStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// Point is a geographic location with a free-text address.
type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Offer is a driver's proposed price for an open ride.
type Offer struct {
	DriverID      string      `json:"driverId"`
	Amount        float64     `json:"amount"`
	ETA           int         `json:"eta"`
	DriverName    string      `json:"driverName"`
	Rating        float64     `json:"rating"`
	VehicleType   VehicleType `json:"vehicleType"`
	VehicleNumber string      `json:"vehicleNumber"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Message is a chat line exchanged between rider and driver.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FareSplit is the completion-time breakdown of the fare.
type FareSplit struct {
	Driver   float64 `json:"driver"`
	Platform float64 `json:"platform"`
	Brand    float64 `json:"brand"`
}

// DeliveryDetails describes a package delivery ride.
type DeliveryDetails struct {
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	PackageNotes   string `json:"packageNotes,omitempty"`
}

// Ride represents one transportation or delivery request and its lifecycle.
type Ride struct {
	ID              string           `json:"id"`
	RiderID         string           `json:"riderId"`
	DriverID        string           `json:"driverId,omitempty"`
	Pickup          Point            `json:"pickup"`
	Stops           []Point          `json:"stops,omitempty"`
	Dropoff         Point            `json:"dropoff"`
	VehicleType     VehicleType      `json:"vehicleType"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod"`
	RiderOffer      float64          `json:"riderOffer"`
	Fare            float64          `json:"fare"`
	MinPrice        float64          `json:"minPrice,omitempty"`
	MaxPrice        float64          `json:"maxPrice,omitempty"`
	FareSplit       *FareSplit       `json:"fareSplit,omitempty"`
	Offers          []Offer          `json:"offers"`
	Status          RideStatus       `json:"status"`
	SafetyStatus    SafetyStatus     `json:"safetyStatus"`
	OTP             string           `json:"otp,omitempty"`
	IsScheduled     bool             `json:"isScheduled"`
	ScheduledTime   *time.Time       `json:"scheduledTime,omitempty"`
	IsDelivery      bool             `json:"isDelivery"`
	DeliveryDetails *DeliveryDetails `json:"deliveryDetails,omitempty"`
	SponsoredBy     string           `json:"sponsoredBy,omitempty"`
	Messages        []Message        `json:"messages"`
	DriverRating    int              `json:"driverRating,omitempty"`
	RiderRating     int              `json:"riderRating,omitempty"`
	SettlingSince   *time.Time       `json:"-"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// IsParty reports whether the user is the ride's rider or assigned driver.
func (r *Ride) IsParty(userID string) bool {
	return userID != "" && (r.RiderID == userID || r.DriverID == userID)
}

// UpsertOffer inserts the offer or replaces the existing offer from the same driver.
func (r *Ride) UpsertOffer(offer Offer) {
	for i := range r.Offers {
		if r.Offers[i].DriverID == offer.DriverID {
			r.Offers[i] = offer
			return
		}
	}
	r.Offers = append(r.Offers, offer)
}

// FindOffer returns the offer from driverID with exactly the given amount.
func (r *Ride) FindOffer(driverID string, amount float64) (Offer, bool) {
	for _, offer := range r.Offers {
		if offer.DriverID == driverID && offer.Amount == amount {
			return offer, true
		}
	}
	return Offer{}, false
}

// Clone returns a deep copy of the ride.
func (r *Ride) Clone() *Ride {
	c := *r
	if r.Stops != nil {
		c.Stops = append([]Point(nil), r.Stops...)
	}
	c.Offers = append([]Offer{}, r.Offers...)
	c.Messages = append([]Message{}, r.Messages...)
	if r.FareSplit != nil {
		split := *r.FareSplit
		c.FareSplit = &split
	}
	if r.ScheduledTime != nil {
		at := *r.ScheduledTime
		c.ScheduledTime = &at
	}
	if r.DeliveryDetails != nil {
		details := *r.DeliveryDetails
		c.DeliveryDetails = &details
	}
	if r.SettlingSince != nil {
		since := *r.SettlingSince
		c.SettlingSince = &since
	}
	return &c
}

// Redacted returns the driver-safe copy, for event sinks that persist payloads.
func (r *Ride) Redacted() any {
	return r.ForDriver()
}

// ForDriver returns a copy safe to show to drivers, without the one-time code.
func (r *Ride) ForDriver() *Ride {
	c := r.Clone()
	c.OTP = ""
	return c
}
