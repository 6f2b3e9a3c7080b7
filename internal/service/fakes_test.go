package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"ridedeck/internal/domain"
	"ridedeck/internal/events"
	"ridedeck/internal/maps"
	"ridedeck/internal/repository/memory"
)

var errInjected = errors.New("injected failure")

// testNow is a weekday afternoon, outside both peak windows.
var testNow = time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)

var testPickup = domain.Point{Lat: 12.9716, Lng: 77.5946, Address: "MG Road"}
var testDropoff = domain.Point{Lat: 12.9352, Lng: 77.6245, Address: "Koramangala"}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ──────────────────────────────────────────────
// FAKE GEO INDEX
// ──────────────────────────────────────────────

type fakeGeo struct {
	mu sync.Mutex

	Candidates     []Candidate
	Campaign       *domain.Campaign
	OnlineDrivers  int
	SearchingRides int

	NearbyErr   error
	CampaignErr error
	CountErr    error

	LastQuery DriverQuery
	Tracked   map[string]bool
	Locations map[string]domain.Point
	Removed   []string
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{
		OnlineDrivers: 1,
		Tracked:       make(map[string]bool),
		Locations:     make(map[string]domain.Point),
	}
}

func (g *fakeGeo) NearbyDrivers(ctx context.Context, q DriverQuery) ([]Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastQuery = q
	if g.NearbyErr != nil {
		return nil, g.NearbyErr
	}
	return append([]Candidate(nil), g.Candidates...), nil
}

func (g *fakeGeo) NearbyCampaign(ctx context.Context, lat, lng, radiusKm float64) (*domain.Campaign, error) {
	if g.CampaignErr != nil {
		return nil, g.CampaignErr
	}
	return g.Campaign, nil
}

func (g *fakeGeo) CountOnlineDrivers(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	if g.CountErr != nil {
		return 0, g.CountErr
	}
	return g.OnlineDrivers, nil
}

// CountSearchingRides reports the preset demand plus every tracked ride.
func (g *fakeGeo) CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	if g.CountErr != nil {
		return 0, g.CountErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.SearchingRides + len(g.Tracked), nil
}

func (g *fakeGeo) TrackSearchingRide(ctx context.Context, ride *domain.Ride) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Tracked[ride.ID] = true
	return nil
}

func (g *fakeGeo) UntrackSearchingRide(ctx context.Context, rideID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.Tracked, rideID)
	return nil
}

func (g *fakeGeo) UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Locations[driverID] = domain.Point{Lat: lat, Lng: lng}
	return nil
}

func (g *fakeGeo) RemoveDriver(ctx context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.Locations, driverID)
	g.Removed = append(g.Removed, driverID)
	return nil
}

func (g *fakeGeo) isTracked(rideID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Tracked[rideID]
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

type published struct {
	Target  string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, targetID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Target: targetID, Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) Broadcast(ctx context.Context, event string, payload any) error {
	return p.Publish(ctx, events.BroadcastTarget, event, payload)
}

// find returns every event with the given name, in emission order.
func (p *recordingPublisher) find(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// ──────────────────────────────────────────────
// FAKE QUEUE / ROUTES / CACHE
// ──────────────────────────────────────────────

type fakeQueue struct {
	mu       sync.Mutex
	enqueued map[string]time.Time
	Err      error
}

func (q *fakeQueue) EnqueueRelease(ctx context.Context, rideID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	if q.enqueued == nil {
		q.enqueued = make(map[string]time.Time)
	}
	q.enqueued[rideID] = at
	return nil
}

type stubRoutes struct {
	route *maps.Route
	err   error
	calls int
}

func (s *stubRoutes) Estimate(ctx context.Context, originLat, originLng, destLat, destLng float64) (*maps.Route, error) {
	s.calls++
	return s.route, s.err
}

type fakeCache struct {
	mu          sync.Mutex
	drivers     map[string]*domain.Driver
	GetErr      error
	Invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{drivers: make(map[string]*domain.Driver)}
}

func (c *fakeCache) GetDriversBatch(ctx context.Context, ids []string) (map[string]*domain.Driver, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, ids, c.GetErr
	}
	out := make(map[string]*domain.Driver)
	var missing []string
	for _, id := range ids {
		if d, ok := c.drivers[id]; ok {
			copied := *d
			out[id] = &copied
		} else {
			missing = append(missing, id)
		}
	}
	return out, missing, nil
}

func (c *fakeCache) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range drivers {
		copied := *d
		c.drivers[d.ID] = &copied
	}
	return nil
}

func (c *fakeCache) InvalidateDriver(ctx context.Context, driverID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drivers, driverID)
	c.Invalidated = append(c.Invalidated, driverID)
	return nil
}

// ──────────────────────────────────────────────
// TEST ENVIRONMENT
// ──────────────────────────────────────────────

type testEnv struct {
	rides     *memory.RideRepository
	drivers   *memory.DriverRepository
	ledger    *memory.Ledger
	geo       *fakeGeo
	publisher *recordingPublisher
	queue     *fakeQueue
	clock     *testClock

	surge       *SurgeService
	pricing     *FarePricingEngine
	negotiation *NegotiationLedger
	coordinator *RideCoordinator
	driverSvc   *DriverService
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		rides:     memory.NewRideRepository(),
		drivers:   memory.NewDriverRepository(),
		ledger:    memory.NewLedger(),
		geo:       newFakeGeo(),
		publisher: &recordingPublisher{},
		queue:     &fakeQueue{},
		clock:     &testClock{t: testNow},
	}
	logger := quietLogger()

	notifier := NewNotificationService(env.publisher, logger)

	env.surge = NewSurgeService(env.geo, DefaultSurgeConfig(), time.UTC, logger)
	env.surge.now = env.clock.Now
	env.pricing = NewFarePricingEngine(env.surge, nil, DefaultSplitRates(), logger)

	env.negotiation = NewNegotiationLedger(env.rides, 3, logger)
	env.negotiation.now = env.clock.Now

	settlement := NewSettlementService(env.ledger, env.pricing, logger)
	settlement.now = env.clock.Now

	env.coordinator = NewRideCoordinator(RideCoordinatorDeps{
		Rides:      env.rides,
		Users:      env.ledger,
		Drivers:    env.drivers,
		Ledger:     env.negotiation,
		Dispatch:   NewDispatchRouter(env.geo, notifier, DefaultDispatchConfig(), logger),
		Pricing:    env.pricing,
		Settlement: settlement,
		Notifier:   notifier,
		Geo:        env.geo,
		Queue:      env.queue,
		Logger:     logger,
	})
	env.coordinator.now = env.clock.Now

	env.driverSvc = NewDriverService(env.geo, newFakeCache(), env.drivers, env.rides, notifier, logger)
	env.driverSvc.now = env.clock.Now

	return env
}

func (e *testEnv) addRider(id string, balance float64) {
	e.ledger.Put(&domain.User{ID: id, Name: "Rider " + id, Role: domain.RoleRider, WalletBalance: balance})
}

func (e *testEnv) addDriver(id string, balance float64, mutate ...func(*domain.Driver)) *domain.Driver {
	expiry := testNow.Add(30 * 24 * time.Hour)
	d := &domain.Driver{
		ID:                 id,
		Name:               "Driver " + id,
		VehicleType:        domain.VehicleTypeCab,
		VehicleNumber:      "KA01AB" + id,
		Online:             true,
		Rating:             4.8,
		SubscriptionStatus: domain.SubscriptionStatusActive,
		SubscriptionExpiry: &expiry,
		KYCVerified:        true,
	}
	for _, fn := range mutate {
		fn(d)
	}
	e.drivers.Put(d)
	e.ledger.Put(&domain.User{ID: id, Name: d.Name, Role: domain.RoleDriver, WalletBalance: balance, Rating: d.Rating})
	return d
}

func (e *testEnv) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := e.ledger.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) ride(t *testing.T, id string) *domain.Ride {
	t.Helper()
	r, err := e.rides.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func bookRequest(riderID string, fare float64) BookRequest {
	return BookRequest{
		RiderID:     riderID,
		Pickup:      testPickup,
		Dropoff:     testDropoff,
		VehicleType: domain.VehicleTypeGo,
		Fare:        fare,
	}
}

// bookedRide books a ride for riderID and has driverID accept it directly.
func (e *testEnv) bookedRide(t *testing.T, riderID, driverID string, fare float64, pm domain.PaymentMethod) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	req := bookRequest(riderID, fare)
	req.PaymentMethod = pm
	ride, err := e.coordinator.Book(ctx, req)
	require.NoError(t, err)

	_, err = e.coordinator.DriverAccept(ctx, ride.ID, driverID)
	require.NoError(t, err)
	return e.ride(t, ride.ID)
}

// startedRide drives a booked ride through arrival and OTP start.
func (e *testEnv) startedRide(t *testing.T, riderID, driverID string, fare float64, pm domain.PaymentMethod) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	ride := e.bookedRide(t, riderID, driverID, fare, pm)
	_, err := e.coordinator.UpdateStatus(ctx, StatusRequest{RideID: ride.ID, ActorID: driverID, Role: domain.RoleDriver, Status: domain.RideStatusArrived})
	require.NoError(t, err)
	_, err = e.coordinator.UpdateStatus(ctx, StatusRequest{RideID: ride.ID, ActorID: driverID, Role: domain.RoleDriver, Status: domain.RideStatusStarted, OTP: ride.OTP})
	require.NoError(t, err)
	return e.ride(t, ride.ID)
}

func candidate(d *domain.Driver, lat, lng float64) Candidate {
	return Candidate{Driver: d, Lat: lat, Lng: lng}
}
