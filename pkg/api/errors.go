package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of gateway error. Policy and state violations are
// surfaced to the caller verbatim and are never retried automatically.
type Code string

const (
	// CodeUnauthenticated means the bearer credential is missing or invalid.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeInsufficientPermissions means no role held by the caller grants the tool.
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	// CodeUnknownTool means the (domain, tool) pair is not registered.
	CodeUnknownTool Code = "UNKNOWN_TOOL"
	// CodeInvalidState means the target record does not permit the requested transition.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeSeparationOfDuties means the decider is the original submitter.
	CodeSeparationOfDuties Code = "SEPARATION_OF_DUTIES"
	// CodeConfirmationNotFound means the confirmation id is unknown or already resolved.
	CodeConfirmationNotFound Code = "CONFIRMATION_NOT_FOUND"
	// CodeConfirmationExpired means the confirmation timed out before resolution.
	CodeConfirmationExpired Code = "CONFIRMATION_EXPIRED"
	// CodeNotFound means the referenced domain record does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeBackendUnavailable means a backend could not be reached. This is the
	// one retryable class; the gateway retries it once with backoff on reads.
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	// CodeInvalidRequest means the request itself was malformed.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeInternal means an unexpected gateway-side failure.
	CodeInternal Code = "INTERNAL"
)

// Error is the typed boundary error carried through the gateway and mapped
// onto the response envelope. SuggestedAction tells the caller (human or AI)
// what to do about it.
type Error struct {
	Code            Code
	Message         string
	SuggestedAction string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a typed gateway error.
func NewError(code Code, message, suggestedAction string) *Error {
	return &Error{Code: code, Message: message, SuggestedAction: suggestedAction}
}

// Errorf builds a typed gateway error with a formatted message.
func Errorf(code Code, suggestedAction, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), SuggestedAction: suggestedAction}
}

// FromError converts any error into an error envelope. Typed gateway errors
// keep their code; everything else becomes INTERNAL without leaking detail.
func FromError(err error) *Response {
	var ge *Error
	if errors.As(err, &ge) {
		return &Response{
			Status:          StatusError,
			Code:            ge.Code,
			Message:         ge.Message,
			SuggestedAction: ge.SuggestedAction,
		}
	}
	return &Response{
		Status:          StatusError,
		Code:            CodeInternal,
		Message:         "internal error",
		SuggestedAction: "Retry the request; contact an administrator if the problem persists.",
	}
}

// HTTPStatus maps an error code to the HTTP status used on the wire.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInsufficientPermissions, CodeSeparationOfDuties:
		return http.StatusForbidden
	case CodeUnknownTool, CodeNotFound, CodeConfirmationNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusConflict
	case CodeConfirmationExpired:
		return http.StatusGone
	case CodeBackendUnavailable:
		return http.StatusBadGateway
	case CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
