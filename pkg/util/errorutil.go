package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes for the engine taxonomy. The first block is specific to
// assignment and SLA handling; the second block is the generic
// transport vocabulary.
const (
	CodeInvalidUnit              = "INVALID_UNIT"
	CodeNoEligibleHandler        = "NO_ELIGIBLE_HANDLER"
	CodeHandlerInactive          = "HANDLER_INACTIVE"
	CodeConcurrentAssignmentLost = "CONCURRENT_ASSIGNMENT_LOST"
	CodeTimerAlreadyResolved     = "TIMER_ALREADY_RESOLVED"
	CodeInvalidTransition        = "INVALID_TRANSITION"

	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
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
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvalidUnit flags a ticket whose unit is outside the configured
// set. Non-fatal: the ticket is held for manual intervention.
func NewInvalidUnit(unit string) error {
	return NewDomainError(CodeInvalidUnit, "ticket unit not configured", http.StatusUnprocessableEntity,
		map[string]any{"unit": unit})
}

// NewNoEligibleHandler flags an empty eligibility pool. Non-fatal: the
// ticket is held for manual intervention.
func NewNoEligibleHandler(unit string) error {
	return NewDomainError(CodeNoEligibleHandler, "no eligible handler for unit", http.StatusConflict,
		map[string]any{"unit": unit})
}

// NewHandlerInactive rejects a manual assignment whose target cannot
// take tickets. The ticket state is left unchanged.
func NewHandlerInactive(handlerID string) error {
	return NewDomainError(CodeHandlerInactive, "handler inactive", http.StatusConflict,
		map[string]any{"handler_id": handlerID})
}

// NewInvalidTransition rejects an illegal status edge.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition, "invalid status transition", http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

// NewTimerAlreadyResolved marks a fire event for an intent that was
// already cancelled or fired. Ignored by callers, logged only.
func NewTimerAlreadyResolved(intentID string) error {
	return NewDomainError(CodeTimerAlreadyResolved, "timer intent already resolved", http.StatusConflict,
		map[string]any{"intent_id": intentID})
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
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to the error interface form of
// DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// CodeOf extracts the taxonomy code from an error, or CodeInternal
// when the error carries none.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
