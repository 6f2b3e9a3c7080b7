package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedeck/internal/service"
)

// codeInternal is reported for failures that carry no service code.
const codeInternal = "INTERNAL"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: codeInternal})
		return
	}
	c.JSON(mapCodeToHTTPStatus(svcErr.Code), ErrorResponse{Error: err.Error(), Code: string(svcErr.Code)})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// bindJSON decodes the request body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, fmt.Errorf("%w: %v", service.ErrValidation, err))
		return false
	}
	return true
}

// mapCodeToHTTPStatus maps service error codes to HTTP status codes.
func mapCodeToHTTPStatus(code service.Code) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound

	case service.CodeValidation,
		service.CodeInvalidOTP,
		service.CodeOfferMismatch,
		service.CodeInsufficientBalance,
		service.CodeActiveRideExists:
		return http.StatusBadRequest

	case service.CodeUnauthorized,
		service.CodeForbidden,
		service.CodeSubscriptionRequired:
		return http.StatusForbidden

	case service.CodeInvalidState,
		service.CodeConflictRetryable:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
