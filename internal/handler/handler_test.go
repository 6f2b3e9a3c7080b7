package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedeck/internal/domain"
	"ridedeck/internal/middleware"
	"ridedeck/internal/repository/memory"
	"ridedeck/internal/service"
)

var testSecret = []byte("handler-test-secret")

// stubGeo is an empty geo index: no drivers nearby, one online for surge.
type stubGeo struct {
	mu        sync.Mutex
	locations map[string]domain.Point
}

func (g *stubGeo) NearbyDrivers(ctx context.Context, q service.DriverQuery) ([]service.Candidate, error) {
	return nil, nil
}

func (g *stubGeo) NearbyCampaign(ctx context.Context, lat, lng, radiusKm float64) (*domain.Campaign, error) {
	return nil, nil
}

func (g *stubGeo) CountOnlineDrivers(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	return 1, nil
}

func (g *stubGeo) CountSearchingRides(ctx context.Context, lat, lng, radiusKm float64) (int, error) {
	return 0, nil
}

func (g *stubGeo) TrackSearchingRide(ctx context.Context, ride *domain.Ride) error { return nil }

func (g *stubGeo) UntrackSearchingRide(ctx context.Context, rideID string) error { return nil }

func (g *stubGeo) UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locations[driverID] = domain.Point{Lat: lat, Lng: lng}
	return nil
}

func (g *stubGeo) RemoveDriver(ctx context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locations, driverID)
	return nil
}

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, targetID, event string, payload any) error {
	return nil
}

func (discardPublisher) Broadcast(ctx context.Context, event string, payload any) error {
	return nil
}

type nopCache struct{}

func (nopCache) GetDriversBatch(ctx context.Context, ids []string) (map[string]*domain.Driver, []string, error) {
	return nil, ids, nil
}

func (nopCache) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error { return nil }

func (nopCache) InvalidateDriver(ctx context.Context, driverID string) error { return nil }

type testServer struct {
	router  *gin.Engine
	ledger  *memory.Ledger
	drivers *memory.DriverRepository
	geo     *stubGeo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rides := memory.NewRideRepository()
	drivers := memory.NewDriverRepository()
	ledger := memory.NewLedger()
	geo := &stubGeo{locations: make(map[string]domain.Point)}

	notifier := service.NewNotificationService(discardPublisher{}, logger)
	surge := service.NewSurgeService(geo, service.DefaultSurgeConfig(), time.UTC, logger)
	pricing := service.NewFarePricingEngine(surge, nil, service.DefaultSplitRates(), logger)

	coordinator := service.NewRideCoordinator(service.RideCoordinatorDeps{
		Rides:      rides,
		Users:      ledger,
		Drivers:    drivers,
		Ledger:     service.NewNegotiationLedger(rides, 3, logger),
		Dispatch:   service.NewDispatchRouter(geo, notifier, service.DefaultDispatchConfig(), logger),
		Pricing:    pricing,
		Settlement: service.NewSettlementService(ledger, pricing, logger),
		Notifier:   notifier,
		Geo:        geo,
		Logger:     logger,
	})
	driverSvc := service.NewDriverService(geo, nopCache{}, drivers, rides, notifier, logger)

	rh := NewRideHandler(coordinator)
	dh := NewDriverHandler(driverSvc)

	router := gin.New()
	v1 := router.Group("/v1", middleware.Auth(testSecret))
	v1.POST("/rides/estimate", rh.Estimate)
	v1.POST("/rides", rh.Book)
	v1.POST("/rides/schedule", rh.Schedule)
	v1.GET("/rides/available", rh.ListAvailable)
	v1.GET("/rides/current", rh.Current)
	v1.GET("/rides/history", rh.History)
	v1.GET("/rides/:id", rh.Get)
	v1.POST("/rides/:id/offers", rh.Offer)
	v1.POST("/rides/:id/accept", rh.Accept)
	v1.POST("/rides/:id/accept-offer", rh.AcceptOffer)
	v1.POST("/rides/:id/boost", rh.Boost)
	v1.POST("/rides/:id/counter", rh.Counter)
	v1.POST("/rides/:id/status", rh.UpdateStatus)
	v1.POST("/rides/:id/cancel", rh.Cancel)
	v1.POST("/rides/:id/messages", rh.SendMessage)
	v1.POST("/rides/:id/rate", rh.Rate)
	v1.POST("/rides/:id/sos", rh.SOS)
	v1.POST("/drivers/me/online", dh.SetOnline)
	v1.POST("/drivers/me/location", dh.UpdateLocation)

	return &testServer{router: router, ledger: ledger, drivers: drivers, geo: geo}
}

func (s *testServer) addRider(id string, balance float64) {
	s.ledger.Put(&domain.User{ID: id, Name: "Rider " + id, Role: domain.RoleRider, WalletBalance: balance})
}

func (s *testServer) addDriver(id string, online, kyc bool) {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	s.drivers.Put(&domain.Driver{
		ID:                 id,
		Name:               "Driver " + id,
		VehicleType:        domain.VehicleTypeCab,
		Online:             online,
		Rating:             4.8,
		SubscriptionStatus: domain.SubscriptionStatusActive,
		SubscriptionExpiry: &expiry,
		KYCVerified:        kyc,
	})
	s.ledger.Put(&domain.User{ID: id, Name: "Driver " + id, Role: domain.RoleDriver})
}

func (s *testServer) do(t *testing.T, method, path, userID string, role domain.Role, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	token, err := middleware.IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func bookBody(fare float64) gin.H {
	return gin.H{
		"pickup":        gin.H{"lat": 12.9716, "lng": 77.5946, "address": "MG Road"},
		"dropoff":       gin.H{"lat": 12.9352, "lng": 77.6245, "address": "Koramangala"},
		"vehicleType":   "go",
		"paymentMethod": "cash",
		"fare":          fare,
	}
}

func TestRideFlow_NegotiateToCompletion(t *testing.T) {
	s := newTestServer(t)
	s.addRider("rider-1", 0)
	s.addDriver("driver-1", true, true)

	w := s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, bookBody(200))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booked := decode[domain.Ride](t, w)
	assert.Equal(t, domain.RideStatusSearching, booked.Status)
	require.Len(t, booked.OTP, 4)
	rideURL := "/v1/rides/" + booked.ID

	w = s.do(t, http.MethodPost, rideURL+"/offers", "driver-1", domain.RoleDriver, gin.H{"amount": 240, "eta": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	offered := decode[OfferResponse](t, w)
	assert.Equal(t, domain.RideStatusNegotiating, offered.Ride.Status)
	assert.Empty(t, offered.Ride.OTP)

	w = s.do(t, http.MethodPost, rideURL+"/accept-offer", "rider-1", domain.RoleRider, gin.H{"driverId": "driver-1", "amount": 240})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[domain.Ride](t, w)
	assert.Equal(t, domain.RideStatusBooked, accepted.Status)
	assert.Equal(t, "driver-1", accepted.DriverID)
	assert.Equal(t, 240.0, accepted.Fare)

	w = s.do(t, http.MethodGet, rideURL, "driver-1", domain.RoleDriver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[domain.Ride](t, w).OTP)

	w = s.do(t, http.MethodPost, rideURL+"/status", "driver-1", domain.RoleDriver, gin.H{"status": "arrived"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, rideURL+"/status", "driver-1", domain.RoleDriver, gin.H{"status": "started", "otp": "0000x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_OTP", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, rideURL+"/status", "driver-1", domain.RoleDriver, gin.H{"status": "started", "otp": booked.OTP})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, rideURL+"/status", "driver-1", domain.RoleDriver, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decode[domain.Ride](t, w)
	assert.Equal(t, domain.RideStatusCompleted, completed.Status)
	require.NotNil(t, completed.FareSplit)

	w = s.do(t, http.MethodPost, rideURL+"/rate", "rider-1", domain.RoleRider, gin.H{"rating": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, rideURL+"/rate", "rider-1", domain.RoleRider, gin.H{"rating": 4})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/rides/history", "rider-1", domain.RoleRider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[service.HistoryPage](t, w)
	assert.Equal(t, 1, page.TotalRides)
}

func TestRideHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.addRider("rider-1", 50)
	s.addRider("rider-2", 0)
	s.addDriver("offline", false, true)
	s.addDriver("online", true, true)

	w := s.do(t, http.MethodGet, "/v1/rides/missing", "rider-1", domain.RoleRider, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)

	body := bookBody(200)
	body["paymentMethod"] = "wallet"
	w = s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, gin.H{"fare": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, bookBody(150))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ride := decode[domain.Ride](t, w)

	w = s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, bookBody(150))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ACTIVE_RIDE_EXISTS", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID, "rider-2", domain.RoleRider, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/offers", "offline", domain.RoleDriver, gin.H{"amount": 160})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/accept-offer", "rider-1", domain.RoleRider, gin.H{"driverId": "online", "amount": 160})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "OFFER_MISMATCH", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/accept-offer", "rider-1", domain.RoleRider, gin.H{"driverId": "offline", "amount": 150})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/boost", "rider-1", domain.RoleRider, gin.H{"amount": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 170.0, decode[domain.Ride](t, w).Fare)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/cancel", "rider-1", domain.RoleRider, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.RideStatusCancelled, decode[domain.Ride](t, w).Status)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/boost", "rider-1", domain.RoleRider, gin.H{"amount": 20})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode[ErrorResponse](t, w).Code)
}

func TestRideHandler_EstimateAndAvailable(t *testing.T) {
	s := newTestServer(t)
	s.addRider("rider-1", 0)
	s.addDriver("driver-1", true, true)

	w := s.do(t, http.MethodPost, "/v1/rides/estimate", "rider-1", domain.RoleRider, gin.H{
		"pickup":  gin.H{"lat": 12.9716, "lng": 77.5946},
		"dropoff": gin.H{"lat": 12.9352, "lng": 77.6245},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	estimate := decode[service.FareEstimate](t, w)
	assert.Len(t, estimate.Estimates, 5)

	w = s.do(t, http.MethodGet, "/v1/rides/current", "rider-1", domain.RoleRider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ride":null}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/rides", "rider-1", domain.RoleRider, bookBody(150))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/rides/available?lat=12.97&lng=77.59", "driver-1", domain.RoleDriver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	available := decode[struct {
		Rides []domain.Ride `json:"rides"`
	}](t, w)
	require.Len(t, available.Rides, 1)
	assert.Empty(t, available.Rides[0].OTP)

	w = s.do(t, http.MethodGet, "/v1/rides/available?lat=north", "driver-1", domain.RoleDriver, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDriverHandler_SetOnlineAndLocation(t *testing.T) {
	s := newTestServer(t)
	s.addDriver("driver-1", false, true)
	s.addDriver("no-kyc", false, false)

	w := s.do(t, http.MethodPost, "/v1/drivers/me/online", "no-kyc", domain.RoleDriver, gin.H{"online": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/v1/drivers/me/online", "driver-1", domain.RoleDriver, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/drivers/me/online", "driver-1", domain.RoleDriver, gin.H{
		"online":   true,
		"location": gin.H{"lat": 12.97, "lng": 77.59},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, s.geo.locations, "driver-1")

	w = s.do(t, http.MethodPost, "/v1/drivers/me/location", "driver-1", domain.RoleDriver, gin.H{"lat": 12.98, "lng": 77.60})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 12.98, s.geo.locations["driver-1"].Lat)

	w = s.do(t, http.MethodPost, "/v1/drivers/me/location", "driver-1", domain.RoleDriver, gin.H{"lat": 123.0, "lng": 77.60})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/drivers/me/online", "driver-1", domain.RoleDriver, gin.H{"online": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, s.geo.locations, "driver-1")
}
