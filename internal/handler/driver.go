package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedeck/internal/domain"
	"ridedeck/internal/middleware"
	"ridedeck/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	drivers *service.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(drivers *service.DriverService) *DriverHandler {
	return &DriverHandler{drivers: drivers}
}

// SetOnlineRequest is the HTTP request body for toggling availability.
type SetOnlineRequest struct {
	Online   *bool         `json:"online" binding:"required"`
	Location *domain.Point `json:"location"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SetOnline handles POST /v1/drivers/me/online
func (h *DriverHandler) SetOnline(c *gin.Context) {
	var req SetOnlineRequest
	if !bindJSON(c, &req) {
		return
	}

	driver, err := h.drivers.SetOnline(c.Request.Context(), service.SetOnlineRequest{
		DriverID: middleware.CallerID(c),
		Online:   *req.Online,
		Location: req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driver)
}

// UpdateLocation handles POST /v1/drivers/me/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.drivers.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: middleware.CallerID(c),
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
