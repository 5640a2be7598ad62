// Package service provides business logic for the storefront.
package service

import (
	"errors"
	"fmt"
)

// Service errors. Handlers map these to HTTP status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateHandle    = errors.New("user ID already taken")
	ErrInvalidCredentials = errors.New("invalid user ID or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUserNotFound       = errors.New("user not found")
	ErrBookNotFound       = errors.New("book not found")
	ErrSlugExists         = errors.New("slug already exists")
	ErrTitleIndexExists   = errors.New("title index already exists")
	ErrAlreadyOwned       = errors.New("book already purchased")
	ErrNotEntitled        = errors.New("purchase required to download this book")
	ErrEntitlementExpired = errors.New("download period has ended, purchase required")
	ErrUpstream           = errors.New("upstream service unavailable")
	ErrNoFile             = errors.New("book has no downloadable file")
)

// ValidationError carries the field-level reason for an ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
