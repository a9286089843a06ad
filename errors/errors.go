package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDuplicateIdentity  = fmt.Errorf("identity already active")
	ErrInvalidIdentity    = fmt.Errorf("invalid identity")
	ErrInvalidTarget      = fmt.Errorf("invalid private message target")
	ErrEmptyBody          = fmt.Errorf("message body is empty")
	ErrMessageTooLong     = fmt.Errorf("message body is too long")
	ErrChannelUnavailable = fmt.Errorf("session channel unavailable")
	ErrStoreExhausted     = fmt.Errorf("message store exhausted")
	ErrUnknownRoom        = fmt.Errorf("unknown room key")
	ErrRouterStopped      = fmt.Errorf("router stopped")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MapToHTTPStatus translates domain errors into the status code returned by the transport.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidIdentity),
		errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrUnknownRoom):
		return http.StatusBadRequest
	case errors.Is(err, ErrMessageTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrStoreExhausted),
		errors.Is(err, ErrRouterStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
