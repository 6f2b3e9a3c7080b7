package service

// Code is a stable, machine-readable failure code.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeInvalidOTP           Code = "INVALID_OTP"
	CodeConflictRetryable    Code = "CONFLICT_RETRYABLE"
	CodeOfferMismatch        Code = "OFFER_MISMATCH"
	CodeSubscriptionRequired Code = "SUBSCRIPTION_REQUIRED"
	CodeActiveRideExists     Code = "ACTIVE_RIDE_EXISTS"
)

// Error is a service failure carrying a stable code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	// ErrRideNotFound is returned when the ride does not exist.
	ErrRideNotFound = newError(CodeNotFound, "ride not found")

	// ErrUserNotFound is returned when a rider or driver account does not exist.
	ErrUserNotFound = newError(CodeNotFound, "user not found")

	// ErrRideNotOpen is returned when offers or acceptance arrive after the ride left negotiation.
	ErrRideNotOpen = newError(CodeInvalidState, "ride is no longer available for offers")

	// ErrRideNotActive is returned when the rider changes the fare of a ride that is not open.
	ErrRideNotActive = newError(CodeInvalidState, "ride is not active")

	// ErrInvalidTransition is returned when the requested status change is illegal.
	ErrInvalidTransition = newError(CodeInvalidState, "status change not allowed in current state")

	// ErrRideNotCompleted is returned when rating a ride that has not completed.
	ErrRideNotCompleted = newError(CodeInvalidState, "ride is not completed")

	// ErrAlreadyRated is returned when a party rates the same ride twice.
	ErrAlreadyRated = newError(CodeInvalidState, "ride already rated")

	// ErrOfferMismatch is returned when no offer from the driver matches the accepted amount.
	ErrOfferMismatch = newError(CodeOfferMismatch, "offer not found or changed")

	// ErrNotAuthorized is returned when the caller is not a party to the ride.
	ErrNotAuthorized = newError(CodeUnauthorized, "not authorized for this ride")

	// ErrDriverOnly is returned when a non-driver calls a driver operation.
	ErrDriverOnly = newError(CodeForbidden, "only drivers can perform this action")

	// ErrDriverOffline is returned when an offline driver offers or accepts.
	ErrDriverOffline = newError(CodeForbidden, "you must be online to take rides")

	// ErrKYCRequired is returned when a driver without verified KYC goes online.
	ErrKYCRequired = newError(CodeForbidden, "KYC not verified")

	// ErrSubscriptionRequired is returned when a driver has no active, unexpired subscription.
	ErrSubscriptionRequired = newError(CodeSubscriptionRequired, "active subscription required")

	// ErrDriverBusy is returned when a driver bound to a ride tries to take another.
	ErrDriverBusy = newError(CodeInvalidState, "driver already has an active ride")

	// ErrDriverUnavailable is returned when the rider picks a driver who went offline or took another ride.
	ErrDriverUnavailable = newError(CodeInvalidState, "driver is no longer available")

	// ErrActiveRideExists is returned when the rider already has an active ride.
	ErrActiveRideExists = newError(CodeActiveRideExists, "you already have an active ride")

	// ErrInsufficientBalance is returned when a wallet-paying rider cannot cover the fare.
	ErrInsufficientBalance = newError(CodeInsufficientBalance, "insufficient wallet balance")

	// ErrInvalidOTP is returned when the presented one-time code does not match.
	ErrInvalidOTP = newError(CodeInvalidOTP, "invalid or missing OTP")

	// ErrConflictRetryable is returned when the ride kept changing under a mutation.
	ErrConflictRetryable = newError(CodeConflictRetryable, "ride was modified concurrently, retry")

	// ErrSettlementInProgress is returned while another request is settling the ride.
	ErrSettlementInProgress = newError(CodeConflictRetryable, "ride settlement in progress, retry")

	// ErrValidation is returned for malformed input.
	ErrValidation = newError(CodeValidation, "invalid request")

	// ErrInvalidLocation is returned when coordinates are missing or out of range.
	ErrInvalidLocation = newError(CodeValidation, "invalid coordinates")

	// ErrInvalidAmount is returned when a fare, offer or increment is not positive.
	ErrInvalidAmount = newError(CodeValidation, "amount must be positive")

	// ErrInvalidVehicleType is returned for an unknown vehicle class.
	ErrInvalidVehicleType = newError(CodeValidation, "invalid vehicle type")

	// ErrInvalidScheduleTime is returned when a scheduled time is not in the future.
	ErrInvalidScheduleTime = newError(CodeValidation, "scheduled time must be in the future")

	// ErrInvalidRating is returned when a rating is outside 1..5.
	ErrInvalidRating = newError(CodeValidation, "rating must be between 1 and 5")
)
