package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the principal does not own the resource.
	ErrUnauthorized = errors.New("unauthorized access")

	// ErrAlreadyReviewed is returned when a reviewed flag is reviewed again.
	ErrAlreadyReviewed = errors.New("fraud flag already reviewed")

	// ErrInvalidInput is returned for malformed repository arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// DuplicateRejectedError is returned when the duplicate guard refuses a
// submission. ClaimNumber names the existing claim that matched.
type DuplicateRejectedError struct {
	ClaimNumber string
	Check       string
}

func (e *DuplicateRejectedError) Error() string {
	return "Potential duplicate claim detected. Similar claim found: " + e.ClaimNumber
}
