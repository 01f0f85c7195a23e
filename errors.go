package rbac

import (
	"errors"
	"net/http"
)

// Custom errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthenticated  = errors.New("unauthorized")
	ErrNotAMember       = errors.New("user is not part of project")
	ErrPermissionDenied = errors.New("forbidden resource")
	ErrOverrideNotFound = errors.New("permission override not found")
)

// StatusCode maps an engine error onto the HTTP status surfaced to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAMember), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrOverrideNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message shown to callers for err. Internal
// failures never leak their cause.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAMember):
		return "User is not part of project."
	case errors.Is(err, ErrUnauthenticated):
		return "Unauthorized"
	case errors.Is(err, ErrPermissionDenied):
		return "Forbidden resource"
	case errors.Is(err, ErrOverrideNotFound), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return err.Error()
	}
	return "Internal server error"
}
