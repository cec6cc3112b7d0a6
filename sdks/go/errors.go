package tamshai

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthenticated is returned when the bearer token is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied is returned when no role held by the caller grants the tool.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrSeparationOfDuties is returned when the decider submitted the record
	// they are trying to approve.
	ErrSeparationOfDuties = errors.New("separation of duties")

	// ErrConfirmationNotFound is returned when the confirmation id is unknown
	// or already resolved.
	ErrConfirmationNotFound = errors.New("confirmation not found")

	// ErrConfirmationExpired is returned when the confirmation timed out
	// before resolution.
	ErrConfirmationExpired = errors.New("confirmation expired")

	// ErrResolutionTimeout is returned when waiting for a confirmation to be
	// resolved exceeds the maximum wait time.
	ErrResolutionTimeout = errors.New("resolution timeout")

	// ErrServerUnreachable is returned when the gateway cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// GatewayError is the base error type for rejections the gateway returned.
type GatewayError struct {
	// Code is the machine-readable gateway error code, e.g. "UNKNOWN_TOOL".
	Code string
	// Message explains why the call was rejected.
	Message string
	// SuggestedAction tells the caller how to proceed.
	SuggestedAction string
	// HTTPStatus is the HTTP status the gateway responded with.
	HTTPStatus int
}

// Error returns the error message.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("tamshai gateway [%s]: %s", e.Code, e.Message)
}

// Is maps well-known gateway codes onto the package sentinel errors, so
// callers can write errors.Is(err, tamshai.ErrPermissionDenied) without
// keeping their own code table.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Code == "UNAUTHENTICATED"
	case ErrPermissionDenied:
		return e.Code == "INSUFFICIENT_PERMISSIONS"
	case ErrSeparationOfDuties:
		return e.Code == "SEPARATION_OF_DUTIES"
	case ErrConfirmationNotFound:
		return e.Code == "CONFIRMATION_NOT_FOUND"
	case ErrConfirmationExpired:
		return e.Code == "CONFIRMATION_EXPIRED"
	}
	return false
}

// PermissionDeniedError is returned when policy rejects the call. It is a
// GatewayError specialization carrying the denial details.
type PermissionDeniedError struct {
	GatewayError
}

// ResolutionTimeoutError is returned when WaitForResolution exceeds its
// maximum wait time.
type ResolutionTimeoutError struct {
	// ConfirmationID is the confirmation that stayed pending.
	ConfirmationID string
}

// Error returns a human-readable description of the timeout.
func (e *ResolutionTimeoutError) Error() string {
	return fmt.Sprintf("resolution timeout for confirmation %s", e.ConfirmationID)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrResolutionTimeout).
func (e *ResolutionTimeoutError) Is(target error) bool {
	return target == ErrResolutionTimeout
}

// ServerUnreachableError is returned when the gateway cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the transport failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
