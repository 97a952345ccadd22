package session

import (
	"errors"
	"fmt"
)

// Error is returned by session and conversation operations.
//
// Codes:
//   - ItemNotFound: an add or remove referenced no resolvable item
//   - InvalidTransitionInput: input not usable in the current state
//   - PersistenceFailure: the tenant store rejected an order write
//   - CollaboratorUnavailable: catalog, directory or transport call failed
//   - UnknownState: the session is in a state with no handler
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// TenantID and CustomerKey identify the affected session.
	TenantID    string
	CustomerKey string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes session errors.
type ErrorCode string

const (
	ErrCodeItemNotFound            ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeInvalidTransitionInput  ErrorCode = "INVALID_TRANSITION_INPUT"
	ErrCodePersistenceFailure      ErrorCode = "PERSISTENCE_FAILURE"
	ErrCodeCollaboratorUnavailable ErrorCode = "COLLABORATOR_UNAVAILABLE"
	ErrCodeUnknownState            ErrorCode = "UNKNOWN_STATE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TenantID != "" {
		msg = fmt.Sprintf("%s (tenant=%s, customer=%s)", msg, e.TenantID, e.CustomerKey)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error for the given session.
func NewError(code ErrorCode, tenantID, customerKey, message string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		TenantID:    tenantID,
		CustomerKey: customerKey,
		Err:         cause,
	}
}

// CodeOf returns the code of a wrapped *Error, or "" if err is not one.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsItemNotFound returns true if err is an ItemNotFound error.
func IsItemNotFound(err error) bool {
	return CodeOf(err) == ErrCodeItemNotFound
}

// IsInvalidInput returns true if err is an InvalidTransitionInput error.
func IsInvalidInput(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransitionInput
}

// IsPersistenceFailure returns true if err is a PersistenceFailure error.
func IsPersistenceFailure(err error) bool {
	return CodeOf(err) == ErrCodePersistenceFailure
}

// IsCollaboratorUnavailable returns true if err is a CollaboratorUnavailable error.
func IsCollaboratorUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeCollaboratorUnavailable
}

// IsUnknownState returns true if err is an UnknownState error.
func IsUnknownState(err error) bool {
	return CodeOf(err) == ErrCodeUnknownState
}
