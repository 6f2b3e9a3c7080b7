package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridedeck/internal/domain"
	"ridedeck/internal/middleware"
	"ridedeck/internal/service"
)

const defaultAvailableLimit = 20

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rides *service.RideCoordinator
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rides *service.RideCoordinator) *RideHandler {
	return &RideHandler{rides: rides}
}

// EstimateRequest is the HTTP request body for a fare estimate.
type EstimateRequest struct {
	Pickup          domain.Point   `json:"pickup"`
	Dropoff         domain.Point   `json:"dropoff"`
	Stops           []domain.Point `json:"stops"`
	DistanceMeters  float64        `json:"distanceMeters"`
	DurationSeconds float64        `json:"durationSeconds"`
}

// BookRideRequest is the HTTP request body for booking a ride.
type BookRideRequest struct {
	Pickup          domain.Point            `json:"pickup"`
	Dropoff         domain.Point            `json:"dropoff"`
	Stops           []domain.Point          `json:"stops"`
	VehicleType     domain.VehicleType      `json:"vehicleType" binding:"required"`
	PaymentMethod   domain.PaymentMethod    `json:"paymentMethod"`
	Fare            float64                 `json:"fare" binding:"required"`
	MinPrice        float64                 `json:"minPrice"`
	MaxPrice        float64                 `json:"maxPrice"`
	IsDelivery      bool                    `json:"isDelivery"`
	DeliveryDetails *domain.DeliveryDetails `json:"deliveryDetails"`
	ScheduledTime   time.Time               `json:"scheduledTime"`
}

// OfferBody is the HTTP request body for a driver's offer.
type OfferBody struct {
	Amount float64 `json:"amount" binding:"required"`
	ETA    int     `json:"eta"`
}

// AcceptOfferBody is the HTTP request body for accepting a driver's offer.
type AcceptOfferBody struct {
	DriverID string  `json:"driverId" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
}

// BoostBody is the HTTP request body for raising the fare.
type BoostBody struct {
	Amount float64 `json:"amount" binding:"required"`
}

// CounterBody is the HTTP request body for a rider's counter offer.
type CounterBody struct {
	DriverID string  `json:"driverId" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
}

// StatusBody is the HTTP request body for a lifecycle status change.
type StatusBody struct {
	Status      domain.RideStatus `json:"status" binding:"required"`
	OTP         string            `json:"otp"`
	SponsoredBy string            `json:"sponsoredBy"`
}

// MessageBody is the HTTP request body for an in-ride chat message.
type MessageBody struct {
	Text string `json:"text" binding:"required"`
}

// RateBody is the HTTP request body for rating the other party.
type RateBody struct {
	Rating int `json:"rating" binding:"required"`
}

// SOSBody is the HTTP request body for an emergency alert.
type SOSBody struct {
	Location *domain.Point `json:"location"`
}

// OfferResponse is the HTTP response for a recorded offer.
type OfferResponse struct {
	Ride  *domain.Ride `json:"ride"`
	Offer domain.Offer `json:"offer"`
}

// Estimate handles POST /v1/rides/estimate
func (h *RideHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if !bindJSON(c, &req) {
		return
	}

	estimate, err := h.rides.Estimate(c.Request.Context(), service.EstimateRequest{
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Stops:           req.Stops,
		DistanceMeters:  req.DistanceMeters,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, estimate)
}

// Book handles POST /v1/rides
func (h *RideHandler) Book(c *gin.Context) {
	var req BookRideRequest
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.Book(c.Request.Context(), toBookRequest(middleware.CallerID(c), req))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, ride)
}

// Schedule handles POST /v1/rides/schedule
func (h *RideHandler) Schedule(c *gin.Context) {
	var req BookRideRequest
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.Schedule(c.Request.Context(), service.ScheduleRequest{
		BookRequest:   toBookRequest(middleware.CallerID(c), req),
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, ride)
}

// ListAvailable handles GET /v1/rides/available?lat=&lng=&limit=
func (h *RideHandler) ListAvailable(c *gin.Context) {
	var near *domain.Point
	if c.Query("lat") != "" || c.Query("lng") != "" {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			respondError(c, service.ErrInvalidLocation)
			return
		}
		near = &domain.Point{Lat: lat, Lng: lng}
	}

	rides, err := h.rides.ListAvailable(c.Request.Context(), near, queryInt(c, "limit", defaultAvailableLimit))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"rides": rides})
}

// Current handles GET /v1/rides/current
func (h *RideHandler) Current(c *gin.Context) {
	ride, err := h.rides.CurrentRide(c.Request.Context(), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ride": ride})
}

// History handles GET /v1/rides/history?page=&limit=
func (h *RideHandler) History(c *gin.Context) {
	page, err := h.rides.History(c.Request.Context(), middleware.CallerID(c), queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, page)
}

// Get handles GET /v1/rides/:id
func (h *RideHandler) Get(c *gin.Context) {
	ride, err := h.rides.Get(c.Request.Context(), c.Param("id"), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// Offer handles POST /v1/rides/:id/offers
func (h *RideHandler) Offer(c *gin.Context) {
	var req OfferBody
	if !bindJSON(c, &req) {
		return
	}

	ride, offer, err := h.rides.RecordOffer(c.Request.Context(), service.OfferRequest{
		RideID:   c.Param("id"),
		DriverID: middleware.CallerID(c),
		Amount:   req.Amount,
		ETA:      req.ETA,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, OfferResponse{Ride: ride, Offer: offer})
}

// Accept handles POST /v1/rides/:id/accept
func (h *RideHandler) Accept(c *gin.Context) {
	ride, err := h.rides.DriverAccept(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// AcceptOffer handles POST /v1/rides/:id/accept-offer
func (h *RideHandler) AcceptOffer(c *gin.Context) {
	var req AcceptOfferBody
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.AcceptOffer(c.Request.Context(), service.AcceptOfferRequest{
		RideID:   c.Param("id"),
		RiderID:  middleware.CallerID(c),
		DriverID: req.DriverID,
		Amount:   req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// Boost handles POST /v1/rides/:id/boost
func (h *RideHandler) Boost(c *gin.Context) {
	var req BoostBody
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.BoostFare(c.Request.Context(), c.Param("id"), middleware.CallerID(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// Counter handles POST /v1/rides/:id/counter
func (h *RideHandler) Counter(c *gin.Context) {
	var req CounterBody
	if !bindJSON(c, &req) {
		return
	}

	err := h.rides.Counter(c.Request.Context(), service.CounterRequest{
		RideID:   c.Param("id"),
		RiderID:  middleware.CallerID(c),
		DriverID: req.DriverID,
		Amount:   req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateStatus handles POST /v1/rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	var req StatusBody
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.UpdateStatus(c.Request.Context(), service.StatusRequest{
		RideID:      c.Param("id"),
		ActorID:     middleware.CallerID(c),
		Role:        middleware.CallerRole(c),
		Status:      req.Status,
		OTP:         req.OTP,
		SponsoredBy: req.SponsoredBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// Cancel handles POST /v1/rides/:id/cancel
func (h *RideHandler) Cancel(c *gin.Context) {
	ride, err := h.rides.Cancel(c.Request.Context(), c.Param("id"), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// SendMessage handles POST /v1/rides/:id/messages
func (h *RideHandler) SendMessage(c *gin.Context) {
	var req MessageBody
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.rides.SendMessage(c.Request.Context(), c.Param("id"), middleware.CallerID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, msg)
}

// Rate handles POST /v1/rides/:id/rate
func (h *RideHandler) Rate(c *gin.Context) {
	var req RateBody
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.Rate(c.Request.Context(), c.Param("id"), middleware.CallerID(c), req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// SOS handles POST /v1/rides/:id/sos
func (h *RideHandler) SOS(c *gin.Context) {
	var req SOSBody
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ride, err := h.rides.RaiseSOS(c.Request.Context(), c.Param("id"), middleware.CallerID(c), req.Location)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

func toBookRequest(riderID string, req BookRideRequest) service.BookRequest {
	return service.BookRequest{
		RiderID:         riderID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Stops:           req.Stops,
		VehicleType:     req.VehicleType,
		PaymentMethod:   req.PaymentMethod,
		Fare:            req.Fare,
		MinPrice:        req.MinPrice,
		MaxPrice:        req.MaxPrice,
		IsDelivery:      req.IsDelivery,
		DeliveryDetails: req.DeliveryDetails,
	}
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
