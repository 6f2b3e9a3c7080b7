package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/maps"
)

const (
	// stopsInflation scales distance and duration once when a ride has any stops.
	stopsInflation = 1.2

	// fallbackMinutesPerKm approximates city traffic at 20 km/h.
	fallbackMinutesPerKm = 3.0
)

// Tier is a vehicle class rate card.
type Tier struct {
	Name    string
	Base    float64
	PerKm   float64
	PerMin  float64
	MinFare float64
}

// Fare returns max(base + km*perKm + min*perMin, minFare).
func (t Tier) Fare(distanceKm, durationMin float64) float64 {
	return math.Max(t.Base+distanceKm*t.PerKm+durationMin*t.PerMin, t.MinFare)
}

// DefaultTiers returns the rate cards of the five bookable classes.
func DefaultTiers() map[domain.VehicleType]Tier {
	return map[domain.VehicleType]Tier{
		domain.VehicleTypeGo:      {Name: "RideDeck Go", Base: 40, PerKm: 12, PerMin: 1.5, MinFare: 60},
		domain.VehicleTypePremier: {Name: "RideDeck Premier", Base: 60, PerKm: 18, PerMin: 2.5, MinFare: 100},
		domain.VehicleTypeXL:      {Name: "RideDeck XL", Base: 90, PerKm: 25, PerMin: 3.5, MinFare: 150},
		domain.VehicleTypeAuto:    {Name: "Auto", Base: 30, PerKm: 10, PerMin: 1, MinFare: 40},
		domain.VehicleTypeBike:    {Name: "Bike", Base: 20, PerKm: 6, PerMin: 0.5, MinFare: 30},
	}
}

// RouteEstimator resolves road distance and duration between two points.
type RouteEstimator interface {
	Estimate(ctx context.Context, originLat, originLng, destLat, destLng float64) (*maps.Route, error)
}

// SplitRates holds the completion-time commission settings.
type SplitRates struct {
	CommissionRate float64
	BrandSubsidy   float64
	LoyaltyRate    float64
}

// DefaultSplitRates returns a 20% commission, a flat 20 brand subsidy and 10% loyalty.
func DefaultSplitRates() SplitRates {
	return SplitRates{CommissionRate: 0.20, BrandSubsidy: 20, LoyaltyRate: 0.10}
}

// EstimateRequest contains the parameters for a fare estimate.
// Distance is in metres and duration in seconds; both zero means unknown.
type EstimateRequest struct {
	Pickup          domain.Point
	Dropoff         domain.Point
	Stops           []domain.Point
	DistanceMeters  float64
	DurationSeconds float64
}

// FareBreakup itemizes the "go" tier estimate.
type FareBreakup struct {
	Base         float64 `json:"base"`
	DistanceFare float64 `json:"distanceFare"`
	TimeFare     float64 `json:"timeFare"`
	Surge        float64 `json:"surge"`
	SurgeAmount  float64 `json:"surgeAmount"`
}

// FareEstimate is the per-tier estimate with the surge snapshot.
type FareEstimate struct {
	Estimates map[domain.VehicleType]float64 `json:"estimates"`
	Breakup   FareBreakup                    `json:"breakup"`
	Meta      SurgeReading                   `json:"meta"`
}

// FarePricingEngine computes tiered fares, surge and the completion split.
type FarePricingEngine struct {
	surge  *SurgeService
	routes RouteEstimator
	tiers  map[domain.VehicleType]Tier
	rates  SplitRates
	logger logrus.FieldLogger
}

// NewFarePricingEngine creates a new FarePricingEngine. routes may be nil,
// in which case missing distances are computed with the haversine formula.
func NewFarePricingEngine(surge *SurgeService, routes RouteEstimator, rates SplitRates, logger logrus.FieldLogger) *FarePricingEngine {
	return &FarePricingEngine{
		surge:  surge,
		routes: routes,
		tiers:  DefaultTiers(),
		rates:  rates,
		logger: logger,
	}
}

// Estimate prices every tier for the trip.
func (e *FarePricingEngine) Estimate(ctx context.Context, req EstimateRequest) (*FareEstimate, error) {
	distanceKm, durationMin, err := e.tripMetrics(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(req.Stops) > 0 {
		distanceKm *= stopsInflation
		durationMin *= stopsInflation
	}

	reading := e.surge.GetReading(ctx, req.Pickup.Lat, req.Pickup.Lng, isValidPoint(req.Pickup))
	multiplier := reading.SurgeMultiplier

	estimate := &FareEstimate{
		Estimates: make(map[domain.VehicleType]float64, len(e.tiers)),
		Meta:      reading,
	}
	for vehicleType, tier := range e.tiers {
		fare := tier.Fare(distanceKm, durationMin)
		estimate.Estimates[vehicleType] = math.Round(fare * multiplier)

		if vehicleType == domain.VehicleTypeGo {
			estimate.Breakup = FareBreakup{
				Base:         tier.Base,
				DistanceFare: math.Round(distanceKm * tier.PerKm),
				TimeFare:     math.Round(durationMin * tier.PerMin),
				Surge:        multiplier,
				SurgeAmount:  math.Round(fare * (multiplier - 1)),
			}
		}
	}

	return estimate, nil
}

// tripMetrics returns distance in km and duration in minutes, preferring client
// values, then the route estimator, then a straight-line approximation.
func (e *FarePricingEngine) tripMetrics(ctx context.Context, req EstimateRequest) (float64, float64, error) {
	if req.DistanceMeters > 0 && req.DurationSeconds > 0 {
		return req.DistanceMeters / 1000, req.DurationSeconds / 60, nil
	}

	if !isValidPoint(req.Pickup) || !isValidPoint(req.Dropoff) {
		return 0, 0, ErrInvalidLocation
	}

	if e.routes != nil {
		route, err := e.routes.Estimate(ctx, req.Pickup.Lat, req.Pickup.Lng, req.Dropoff.Lat, req.Dropoff.Lng)
		if err == nil {
			return float64(route.DistanceMeters) / 1000, float64(route.DurationSeconds) / 60, nil
		}
		e.logger.WithError(err).Warn("route estimate failed, using straight-line distance")
	}

	distanceKm := haversineKm(req.Pickup.Lat, req.Pickup.Lng, req.Dropoff.Lat, req.Dropoff.Lng)
	return distanceKm, distanceKm * fallbackMinutesPerKm, nil
}

// Split computes the completion-time breakdown, each component rounded on its own.
func (e *FarePricingEngine) Split(fare float64, sponsored bool) domain.FareSplit {
	commission := fare * e.rates.CommissionRate
	subsidy := 0.0
	if sponsored {
		subsidy = e.rates.BrandSubsidy
	}

	return domain.FareSplit{
		Driver:   math.Round(fare - commission + subsidy),
		Platform: math.Round(commission),
		Brand:    math.Round(subsidy),
	}
}

// LoyaltyPoints returns the rider's points for a fare.
func (e *FarePricingEngine) LoyaltyPoints(fare float64) int {
	return int(math.Floor(fare * e.rates.LoyaltyRate))
}

// BuildSettlement assembles the ledger effect of completing the ride.
func (e *FarePricingEngine) BuildSettlement(ride *domain.Ride, split domain.FareSplit, now time.Time) *domain.Settlement {
	s := &domain.Settlement{
		RideID:        ride.ID,
		RiderID:       ride.RiderID,
		DriverID:      ride.DriverID,
		PaymentMethod: ride.PaymentMethod,
		Fare:          ride.Fare,
		Split:         split,
		LoyaltyPoints: e.LoyaltyPoints(ride.Fare),
	}

	riderEntry := &domain.Transaction{
		ID:            newID(),
		UserID:        ride.RiderID,
		Amount:        ride.Fare,
		Type:          domain.TransactionTypeDebit,
		Category:      domain.TransactionCategoryRideFare,
		Description:   fmt.Sprintf("Ride to %s", ride.Dropoff.Address),
		RideID:        ride.ID,
		PaymentMethod: ride.PaymentMethod,
		CreatedAt:     now,
	}

	driverEntry := &domain.Transaction{
		ID:            newID(),
		UserID:        ride.DriverID,
		Category:      domain.TransactionCategoryRideFare,
		RideID:        ride.ID,
		PaymentMethod: ride.PaymentMethod,
		CreatedAt:     now,
	}
	if ride.PaymentMethod == domain.PaymentMethodWallet {
		driverEntry.Amount = split.Driver
		driverEntry.Type = domain.TransactionTypeCredit
		driverEntry.Description = "Earnings from ride"
	} else {
		driverEntry.Amount = -split.Platform
		driverEntry.Type = domain.TransactionTypeDebit
		driverEntry.Description = "Commission deduction for cash ride"
	}

	s.Transactions = []*domain.Transaction{riderEntry, driverEntry}
	return s
}
