package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedeck/internal/domain"
	"ridedeck/internal/events"
)

func newTestDispatch(geo *fakeGeo) (*DispatchRouter, *recordingPublisher) {
	publisher := &recordingPublisher{}
	notifier := NewNotificationService(publisher, quietLogger())
	return NewDispatchRouter(geo, notifier, DefaultDispatchConfig(), quietLogger()), publisher
}

func dispatchRide(vt domain.VehicleType) *domain.Ride {
	return &domain.Ride{
		ID:          "ride-1",
		RiderID:     "rider-1",
		Pickup:      domain.Point{Lat: 12.0, Lng: 77.0},
		Dropoff:     testDropoff,
		VehicleType: vt,
		Status:      domain.RideStatusSearching,
		OTP:         "4321",
	}
}

func TestDriverClass(t *testing.T) {
	t.Parallel()

	testCases := map[domain.VehicleType]domain.VehicleType{
		domain.VehicleTypeGo:      domain.VehicleTypeCab,
		domain.VehicleTypePremier: domain.VehicleTypeCab,
		domain.VehicleTypeXL:      domain.VehicleTypeCab,
		domain.VehicleTypeAuto:    domain.VehicleTypeAuto,
		domain.VehicleTypeBike:    domain.VehicleTypeBike,
	}
	for requested, want := range testCases {
		assert.Equal(t, want, DriverClass(requested), "requested %s", requested)
	}
}

func TestPlan_RanksByDistanceThenRating(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	d1 := &domain.Driver{ID: "d1", Rating: 4.5}
	d2 := &domain.Driver{ID: "d2", Rating: 4.9}
	d3 := &domain.Driver{ID: "d3", Rating: 5.0}
	geo.Candidates = []Candidate{
		candidate(d3, 12.02, 77.0),
		candidate(d1, 12.001, 77.0),
		candidate(d2, 12.003, 77.0),
	}
	router, _ := newTestDispatch(geo)

	plan := router.Plan(context.Background(), dispatchRide(domain.VehicleTypeGo))

	// d1 and d2 are within the tie window, so the higher rating wins.
	assert.Equal(t, []string{"d2", "d1", "d3"}, plan.DriverIDs)
	assert.Empty(t, plan.SponsoredBy)
}

func TestPlan_TruncatesTargets(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	for i := 0; i < 25; i++ {
		d := &domain.Driver{ID: fmt.Sprintf("d%02d", i), Rating: 4.5}
		geo.Candidates = append(geo.Candidates, candidate(d, 12.0+float64(i)*0.01, 77.0))
	}
	router, _ := newTestDispatch(geo)

	plan := router.Plan(context.Background(), dispatchRide(domain.VehicleTypeGo))

	require.Len(t, plan.DriverIDs, 15)
	assert.Equal(t, "d00", plan.DriverIDs[0])
	assert.Equal(t, "d14", plan.DriverIDs[14])
}

func TestPlan_QueryByVehicleClass(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	router, _ := newTestDispatch(geo)

	router.Plan(context.Background(), dispatchRide(domain.VehicleTypePremier))
	assert.Equal(t, domain.VehicleTypeCab, geo.LastQuery.VehicleType)
	assert.Equal(t, 4.7, geo.LastQuery.MinRating)
	assert.Equal(t, 5.0, geo.LastQuery.RadiusKm)
	assert.Equal(t, 30, geo.LastQuery.Limit)

	router.Plan(context.Background(), dispatchRide(domain.VehicleTypeBike))
	assert.Equal(t, domain.VehicleTypeBike, geo.LastQuery.VehicleType)
	assert.Zero(t, geo.LastQuery.MinRating)
}

func TestPlan_CampaignNarrowsToOptedInDrivers(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	geo.Campaign = &domain.Campaign{ID: "c1", BrandName: "Cola", IsActive: true}
	geo.Candidates = []Candidate{
		candidate(&domain.Driver{ID: "d1", Rating: 4.5}, 12.001, 77.0),
		candidate(&domain.Driver{ID: "d2", Rating: 4.5, OptedInCampaigns: []string{"Cola"}}, 12.01, 77.0),
	}
	router, _ := newTestDispatch(geo)

	plan := router.Plan(context.Background(), dispatchRide(domain.VehicleTypeGo))

	assert.Equal(t, []string{"d2"}, plan.DriverIDs)
	assert.Equal(t, "Cola", plan.SponsoredBy)
}

func TestPlan_CampaignWithoutOptInsKeepsEveryone(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	geo.Campaign = &domain.Campaign{ID: "c1", BrandName: "Cola", IsActive: true}
	geo.Candidates = []Candidate{
		candidate(&domain.Driver{ID: "d1", Rating: 4.5}, 12.001, 77.0),
		candidate(&domain.Driver{ID: "d2", Rating: 4.5}, 12.01, 77.0),
	}
	router, _ := newTestDispatch(geo)

	plan := router.Plan(context.Background(), dispatchRide(domain.VehicleTypeGo))

	assert.Equal(t, []string{"d1", "d2"}, plan.DriverIDs)
	assert.Equal(t, "Cola", plan.SponsoredBy)
}

func TestPlan_LookupFailureBroadcasts(t *testing.T) {
	t.Parallel()
	geo := newFakeGeo()
	geo.NearbyErr = errInjected
	geo.CampaignErr = errInjected
	router, publisher := newTestDispatch(geo)
	ride := dispatchRide(domain.VehicleTypeGo)

	plan := router.Plan(context.Background(), ride)
	require.True(t, plan.Broadcast())

	router.Announce(context.Background(), ride, plan)
	sent := publisher.find(events.NewRideRequest)
	require.Len(t, sent, 1)
	assert.Equal(t, events.BroadcastTarget, sent[0].Target)
	assert.Empty(t, sent[0].Payload.(*domain.Ride).OTP)
}

func TestAnnounce_TargetsPlannedDrivers(t *testing.T) {
	t.Parallel()
	router, publisher := newTestDispatch(newFakeGeo())
	ride := dispatchRide(domain.VehicleTypeGo)

	router.Announce(context.Background(), ride, &DispatchPlan{DriverIDs: []string{"d1", "d2"}})

	sent := publisher.find(events.NewRideRequest)
	require.Len(t, sent, 2)
	assert.Equal(t, "d1", sent[0].Target)
	assert.Equal(t, "d2", sent[1].Target)
	for _, e := range sent {
		assert.Empty(t, e.Payload.(*domain.Ride).OTP)
	}
	assert.Equal(t, "4321", ride.OTP)
}
