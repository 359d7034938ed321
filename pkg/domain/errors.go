package domain

import (
	"errors"
	"fmt"
)

// ErrNotFoundOrUnauthorized is returned when a record is missing or not owned by the caller.
// The two cases are deliberately collapsed so non-owners cannot probe for existence.
var ErrNotFoundOrUnauthorized = errors.New("booking not found or not owned by caller")

// ValidationError reports invalid or missing request input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// UnauthorizedError reports a missing or invalid caller credential.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// NewUnauthorizedError creates an UnauthorizedError.
func NewUnauthorizedError(msg string) *UnauthorizedError {
	return &UnauthorizedError{Message: msg}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ForbiddenError reports an authenticated caller acting outside their rights.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// NewForbiddenError creates a ForbiddenError.
func NewForbiddenError(msg string) *ForbiddenError {
	return &ForbiddenError{Message: msg}
}

// ConflictError reports a concurrent modification or conflicting request.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflictError creates a ConflictError.
func NewConflictError(msg string) *ConflictError {
	return &ConflictError{Message: msg}
}

// InvalidStateError reports a lifecycle transition that is not allowed from the current state.
type InvalidStateError struct {
	From string
	To   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewInvalidStateError creates an InvalidStateError.
func NewInvalidStateError(from, to string) *InvalidStateError {
	return &InvalidStateError{From: from, To: to}
}

// GatewayErrorKind distinguishes transport failures from malformed upstream payloads.
type GatewayErrorKind string

const (
	GatewayUnavailable   GatewayErrorKind = "gateway_unavailable"
	GatewayProtocolError GatewayErrorKind = "gateway_protocol_error"
)

// GatewayError reports a failed read against the external payment gateway.
// Callers should treat it as retryable.
type GatewayError struct {
	Kind       GatewayErrorKind
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (upstream status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayUnavailableError creates a GatewayError for non-success upstream outcomes.
func NewGatewayUnavailableError(statusCode int, err error) *GatewayError {
	return &GatewayError{Kind: GatewayUnavailable, StatusCode: statusCode, Err: err}
}

// NewGatewayProtocolError creates a GatewayError for undecodable upstream responses.
func NewGatewayProtocolError(err error) *GatewayError {
	return &GatewayError{Kind: GatewayProtocolError, Err: err}
}

// IsNotFoundOrUnauthorized reports whether err hides a missing or foreign record.
func IsNotFoundOrUnauthorized(err error) bool {
	return errors.Is(err, ErrNotFoundOrUnauthorized)
}
