package types

import (
	"errors"
	"fmt"
)

// Admission rejection reasons
const (
	RejectHourlyLimit = "hourly_limit"
	RejectRiskLimit   = "risk_limit"
)

// ErrSessionNotFound is returned for unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// ValidationError marks malformed input. The session is not created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AdmissionRejected means the entry was refused; the session stays FLAT
type AdmissionRejected struct {
	Reason string
	Detail string
}

func (e *AdmissionRejected) Error() string {
	if e.Detail == "" {
		return "admission rejected: " + e.Reason
	}
	return fmt.Sprintf("admission rejected: %s (%s)", e.Reason, e.Detail)
}

// Reject builds an AdmissionRejected
func Reject(reason, detail string) error {
	return &AdmissionRejected{Reason: reason, Detail: detail}
}

// ExecutionFailure means an order was not confirmed; no trade is recorded as open
type ExecutionFailure struct {
	OrderID string
	Reason  string
	Err     error
}

func (e *ExecutionFailure) Error() string {
	msg := "execution failed: " + e.Reason
	if e.OrderID != "" {
		msg += " (order " + e.OrderID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// TransientDataError means the snapshot was missing or stale; the tick is skipped
type TransientDataError struct {
	Instrument string
	Err        error
}

func (e *TransientDataError) Error() string {
	return fmt.Sprintf("market data unavailable for %s: %v", e.Instrument, e.Err)
}

func (e *TransientDataError) Unwrap() error { return e.Err }

// FatalSessionError is an unexpected failure inside one session's step
type FatalSessionError struct {
	SessionID string
	Err       error
}

func (e *FatalSessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *FatalSessionError) Unwrap() error { return e.Err }

// IsRejection reports whether err is an AdmissionRejected, optionally with the given reason
func IsRejection(err error, reason string) bool {
	var rej *AdmissionRejected
	if !errors.As(err, &rej) {
		return false
	}
	return reason == "" || rej.Reason == reason
}

// IsTransient reports whether err is a TransientDataError
func IsTransient(err error) bool {
	var te *TransientDataError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExecutionFailure reports whether err is an ExecutionFailure
func IsExecutionFailure(err error) bool {
	var ef *ExecutionFailure
	return errors.As(err, &ef)
}
