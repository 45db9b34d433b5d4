// Package errors provides the error taxonomy shared by every investex service.
//
// Errors carry a Kind that callers match with errors.Is against the exported
// sentinels, an optional human message, per-field validation failures and
// structured details (for example both the required and the actual risk tier).
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
)

var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Error kinds.
const (
	KindNotFound                      = "NotFound"
	KindConflict                      = "Conflict"
	KindValidationFailed              = "ValidationFailed"
	KindInsufficientQuantity          = "InsufficientQuantity"
	KindInsufficientBalance           = "InsufficientBalance"
	KindRiskTierExceeded              = "RiskTierExceeded"
	KindPositionLimitExceeded         = "PositionLimitExceeded"
	KindTransactionValueLimitExceeded = "TransactionValueLimitExceeded"
	KindAlreadyProcessed              = "AlreadyProcessed"
	KindUnauthorized                  = "Unauthorized"
	KindForbidden                     = "Forbidden"
	KindUnavailable                   = "Unavailable"
	KindInternal                      = "Internal"
)

var (
	NotFound                      = NewWithKind(KindNotFound).Explain("resource not found")
	Conflict                      = NewWithKind(KindConflict).Explain("conflicting update")
	ValidationFailed              = NewWithKind(KindValidationFailed).Explain("validation failed")
	InsufficientQuantity          = NewWithKind(KindInsufficientQuantity).Explain("insufficient quantity available")
	InsufficientBalance           = NewWithKind(KindInsufficientBalance).Explain("insufficient balance")
	RiskTierExceeded              = NewWithKind(KindRiskTierExceeded).Explain("instrument risk exceeds wallet risk tier")
	PositionLimitExceeded         = NewWithKind(KindPositionLimitExceeded).Explain("position limit reached")
	TransactionValueLimitExceeded = NewWithKind(KindTransactionValueLimitExceeded).Explain("transaction value limit exceeded")
	AlreadyProcessed              = NewWithKind(KindAlreadyProcessed).Explain("request already processed")
	Unauthorized                  = NewWithKind(KindUnauthorized).Explain("invalid credentials")
	Forbidden                     = NewWithKind(KindForbidden).Explain("operation not permitted")
	Unavailable                   = NewWithKind(KindUnavailable).Explain("service unavailable")
	Internal                      = NewWithKind(KindInternal).Explain("internal error")
)

// Specialised errors. They keep the kind of the sentinel they derive from so
// errors.Is(InstrumentNotFound, NotFound) holds.
var (
	InstrumentNotFound = NotFound.Explain("instrument not found")
	WalletNotFound     = NotFound.Explain("wallet not found")
	DepositNotFound    = NotFound.Explain("deposit request not found")
	DuplicateName      = Conflict.Explain("an instrument with this name already exists")
	InvalidAmount      = ValidationFailed.Explain("amount must be greater than zero")
	NoFieldsProvided   = ValidationFailed.Explain("at least one field must be provided")
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// Error is the error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`
	// Details carries structured context such as limits and actual values.
	Details map[string]any `json:"details,omitempty"`

	trace []byte
	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

func NewWithKind(kind string) *Error {
	return &Error{Kind: kind}
}

// Wrap returns an Internal error caused by err.
func Wrap(err error) *Error {
	return &Error{Kind: KindInternal, cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	if len(e.trace) > 0 {
		str += fmt.Sprintf("\n\nTrace: %s", string(e.trace))
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := e.clone()
	err.cause = cause
	return err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := e.clone()
	err.Message = fmt.Sprintf(message, args...)
	return err
}

// Trace sets the error stack trace
func (e *Error) Trace() *Error {
	err := e.clone()
	stack := make([]byte, 2048)
	n := runtime.Stack(stack, false)
	err.trace = stack[:n]
	return err
}

// WithField returns a copy of the error with one more field failure.
func (e *Error) WithField(kind, field, message string) *Error {
	err := e.clone()
	err.Fields = append(err.Fields, NewFieldError(kind, field, message))
	return err
}

// WithDetail returns a copy of the error with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

// Is matches on kind, so any NotFound error satisfies errors.Is(err, NotFound).
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// HTTPStatus maps the error kind to the status returned to API callers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidationFailed,
		KindInsufficientQuantity,
		KindInsufficientBalance,
		KindRiskTierExceeded,
		KindPositionLimitExceeded,
		KindTransactionValueLimitExceeded,
		KindAlreadyProcessed:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) clone() *Error {
	err := *e
	err.Fields = append([]FieldError(nil), e.Fields...)
	err.Details = maps.Clone(e.Details)
	if err.Details == nil {
		err.Details = make(map[string]any)
	}
	return &err
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
