package service

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
)

// DispatchConfig holds the driver selection policy.
type DispatchConfig struct {
	RadiusKm         float64
	CandidateLimit   int
	TargetLimit      int
	TieEpsilon       float64
	PremierMinRating float64
	CampaignRadiusKm float64
}

// DefaultDispatchConfig returns the default selection policy.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		RadiusKm:         5.0,
		CandidateLimit:   30,
		TargetLimit:      15,
		TieEpsilon:       0.005,
		PremierMinRating: 4.7,
		CampaignRadiusKm: 0.5,
	}
}

// DispatchPlan is the outcome of target selection for one ride.
type DispatchPlan struct {
	DriverIDs   []string
	SponsoredBy string
}

// Broadcast reports whether the ride must be advertised to every driver.
func (p *DispatchPlan) Broadcast() bool {
	return len(p.DriverIDs) == 0
}

// DispatchRouter selects target drivers for open rides and fans the requests out.
type DispatchRouter struct {
	geo      GeoIndex
	notifier *NotificationService
	config   DispatchConfig
	logger   logrus.FieldLogger
}

// NewDispatchRouter creates a new DispatchRouter.
func NewDispatchRouter(geo GeoIndex, notifier *NotificationService, config DispatchConfig, logger logrus.FieldLogger) *DispatchRouter {
	return &DispatchRouter{
		geo:      geo,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// DriverClass maps a requested vehicle class to the class of drivers that serve it.
func DriverClass(requested domain.VehicleType) domain.VehicleType {
	switch requested {
	case domain.VehicleTypeBike, domain.VehicleTypeAuto:
		return requested
	default:
		return domain.VehicleTypeCab
	}
}

// Plan selects the target drivers and the sponsoring brand for a ride.
// Lookup failures degrade to a broadcast plan so the ride is always advertised.
func (r *DispatchRouter) Plan(ctx context.Context, ride *domain.Ride) *DispatchPlan {
	log := r.logger.WithField("ride_id", ride.ID)
	plan := &DispatchPlan{}

	query := DriverQuery{
		Lat:         ride.Pickup.Lat,
		Lng:         ride.Pickup.Lng,
		RadiusKm:    r.config.RadiusKm,
		VehicleType: DriverClass(ride.VehicleType),
		Limit:       r.config.CandidateLimit,
	}
	if ride.VehicleType == domain.VehicleTypePremier {
		query.MinRating = r.config.PremierMinRating
	}

	candidates, err := r.geo.NearbyDrivers(ctx, query)
	if err != nil {
		log.WithError(err).Warn("candidate lookup failed, falling back to broadcast")
		candidates = nil
	}

	r.rank(candidates, ride.Pickup)
	if len(candidates) > r.config.TargetLimit {
		candidates = candidates[:r.config.TargetLimit]
	}

	campaign, err := r.geo.NearbyCampaign(ctx, ride.Pickup.Lat, ride.Pickup.Lng, r.config.CampaignRadiusKm)
	if err != nil {
		log.WithError(err).Warn("campaign lookup failed")
	}
	if campaign != nil {
		plan.SponsoredBy = campaign.BrandName

		var optedIn []Candidate
		for _, c := range candidates {
			if c.Driver.OptedInto(campaign.BrandName) {
				optedIn = append(optedIn, c)
			}
		}
		if len(optedIn) > 0 {
			candidates = optedIn
		}
	}

	plan.DriverIDs = make([]string, 0, len(candidates))
	for _, c := range candidates {
		plan.DriverIDs = append(plan.DriverIDs, c.Driver.ID)
	}

	log.WithFields(logrus.Fields{
		"targets":      len(plan.DriverIDs),
		"sponsored_by": plan.SponsoredBy,
	}).Debug("dispatch planned")

	return plan
}

// Announce emits the new ride request according to the plan.
func (r *DispatchRouter) Announce(ctx context.Context, ride *domain.Ride, plan *DispatchPlan) {
	r.notifier.NotifyRideRequested(ctx, ride, plan.DriverIDs)
}

// Requeue re-advertises a ride to every driver after its driver cancelled.
func (r *DispatchRouter) Requeue(ctx context.Context, ride *domain.Ride) {
	r.notifier.NotifyRideRequested(ctx, ride, nil)
}

// BroadcastBoost re-advertises a boosted fare to every driver, unfiltered.
func (r *DispatchRouter) BroadcastBoost(ctx context.Context, ride *domain.Ride) {
	r.notifier.NotifyFareBoost(ctx, ride)
}

// rank orders candidates by coordinate distance to pickup; candidates within
// TieEpsilon of each other are ordered by rating, highest first.
func (r *DispatchRouter) rank(candidates []Candidate, pickup domain.Point) {
	dist := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		dist[c.Driver.ID] = coordinateDistance(c.Lat, c.Lng, pickup.Lat, pickup.Lng)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := dist[candidates[i].Driver.ID], dist[candidates[j].Driver.ID]
		if math.Abs(di-dj) < r.config.TieEpsilon {
			return candidates[i].Driver.Rating > candidates[j].Driver.Rating
		}
		return di < dj
	})
}
