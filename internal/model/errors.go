package model

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrVersionConflict = errors.New("version conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	// ErrUpstream marks a failed call to an external service.
	ErrUpstream = errors.New("upstream failure")
	// ErrUnavailable marks a feature whose backing service is not configured.
	ErrUnavailable = errors.New("service unavailable")
)
