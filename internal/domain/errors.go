package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal error")
)

// Provider errors.
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
)

// Session token errors.
var (
	ErrInvalidSignature        = errors.New("invalid token signature")
	ErrTokenExpired            = errors.New("token expired")
	ErrMalformedToken          = errors.New("malformed token")
	ErrUnsupportedTokenVersion = errors.New("unsupported token version")
	ErrWrongTokenKind          = errors.New("wrong token kind")
)

// Member business rule errors.
var (
	ErrAccountNotActive     = errors.New("account not active")
	ErrMemberDeleted        = errors.New("member deleted")
	ErrMemberNotDeleted     = errors.New("member not deleted")
	ErrAlreadyBusinessOwner = errors.New("already business owner")
	ErrInsufficientPoints   = errors.New("insufficient points")
	ErrInvalidPointAmount   = errors.New("invalid point amount")
	ErrDuplicateEmail       = errors.New("duplicate email")
	ErrDuplicateNickname    = errors.New("duplicate nickname")
	ErrDuplicateIdentity    = errors.New("duplicate identity link")
	ErrSignupRequired       = errors.New("signup required")
	ErrSignupExpired        = errors.New("signup ticket expired or unknown")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// InsufficientPointsError carries the balance seen when a deduction was refused.
type InsufficientPointsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: balance %d, requested %d", e.Balance, e.Requested)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// IsTokenError reports whether err is one of the session token validation failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrUnsupportedTokenVersion) ||
		errors.Is(err, ErrWrongTokenKind)
}
