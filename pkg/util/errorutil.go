package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to API callers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeUnresolvedAssignment   = "UNRESOLVED_ASSIGNMENT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewInvalidTransition reports a target state that is not reachable for the
// caller. The current state is included so the caller can resynchronize.
func NewInvalidTransition(current, requested string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot move from %s to %s", current, requested),
		http.StatusConflict,
		map[string]any{"current_state": current, "requested_state": requested})
}

// NewUnresolvedAssignment reports a missing hierarchy mapping during auto-assignment.
func NewUnresolvedAssignment(outletCode, role string) error {
	return NewDomainError(CodeUnresolvedAssignment,
		fmt.Sprintf("no %s mapped to outlet %s; supply an officer or fix the hierarchy mapping", role, outletCode),
		http.StatusUnprocessableEntity,
		map[string]any{"outlet_code": outletCode, "role": role})
}

// NewConcurrentModification reports a lost read-validate-write race.
func NewConcurrentModification(resource, id string) error {
	return NewDomainError(CodeConcurrentModification,
		fmt.Sprintf("%s %s was modified concurrently; reload and retry", resource, id),
		http.StatusConflict,
		map[string]any{"id": id})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
