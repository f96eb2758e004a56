package models

import "errors"

// Domain errors. Services return these (usually wrapped with %w) and the API
// layer maps them onto HTTP status codes. Anything not in this list is treated
// as an infrastructure failure.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrDuplicatedReward     = errors.New("reward already granted for reference")
	ErrInactiveCity         = errors.New("city is not active")
	ErrInactiveAirship      = errors.New("airship is not active")
	ErrInvalidTicketStatus  = errors.New("invalid ticket status")
	ErrActiveStayExists     = errors.New("user already has an active stay")
	ErrStayNotCheckedIn     = errors.New("stay is not checked in")
	ErrRoomCapacityExceeded = errors.New("room capacity exceeded")
	ErrTaskNotFound         = errors.New("scheduled task not found")
)

// IsDomainError reports whether err belongs to the domain taxonomy above.
// Background workers use this to tell a business no-op from an infrastructure
// failure that deserves a retry.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrForbidden,
		ErrInsufficientBalance,
		ErrInvalidAmount,
		ErrDuplicatedReward,
		ErrInactiveCity,
		ErrInactiveAirship,
		ErrInvalidTicketStatus,
		ErrActiveStayExists,
		ErrStayNotCheckedIn,
		ErrRoomCapacityExceeded,
		ErrTaskNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
