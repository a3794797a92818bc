// Package apperrors is the structured error type used across the order-book
// matching core: a closed code enum plus Details/Cause, constructed and
// inspected through New/Wrap/Is/GetErrorCode. Every code belongs to one of
// six taxonomies — Validation, Authorization, State, Conflict, Transient,
// Protocol — so callers can make a retry/surface-to-client decision from the
// taxonomy alone without a type switch over every individual code.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Code is the closed error taxonomy.
type Code string

const (
	// Validation: malformed input or out-of-range values.
	CodeInvalidInput Code = "VALIDATION_INVALID_INPUT"

	// Authorization: acting on an order the caller does not own.
	CodeNotOwner Code = "AUTHORIZATION_NOT_OWNER"

	// State: operation illegal in the order's current status.
	CodeImmutable Code = "STATE_IMMUTABLE"
	CodeNotFound  Code = "STATE_NOT_FOUND"

	// Conflict: per-user cap, duplicate pending confirmation.
	CodeLimitExceeded          Code = "CONFLICT_LIMIT_EXCEEDED"
	CodeConfirmationExists     Code = "CONFLICT_CONFIRMATION_EXISTS"
	CodePairDeclined           Code = "CONFLICT_PAIR_DECLINED"

	// Transient: store or cache unavailability.
	CodeStoreUnavailable Code = "TRANSIENT_STORE_UNAVAILABLE"
	CodeCacheUnavailable Code = "TRANSIENT_CACHE_UNAVAILABLE"
	CodeTimeout          Code = "TRANSIENT_TIMEOUT"

	// Protocol: confirmation deadline expired, unknown key, wrong responder.
	CodeConfirmationExpired      Code = "PROTOCOL_CONFIRMATION_EXPIRED"
	CodeConfirmationUnknown      Code = "PROTOCOL_CONFIRMATION_UNKNOWN"
	CodeConfirmationUnauthorized Code = "PROTOCOL_CONFIRMATION_UNAUTHORIZED"

	CodeInternal Code = "INTERNAL"
)

// Taxonomy classifies a Code into one of six error families.
type Taxonomy string

const (
	TaxonomyValidation    Taxonomy = "VALIDATION"
	TaxonomyAuthorization Taxonomy = "AUTHORIZATION"
	TaxonomyState         Taxonomy = "STATE"
	TaxonomyConflict      Taxonomy = "CONFLICT"
	TaxonomyTransient     Taxonomy = "TRANSIENT"
	TaxonomyProtocol      Taxonomy = "PROTOCOL"
)

var taxonomyByCode = map[Code]Taxonomy{
	CodeInvalidInput:             TaxonomyValidation,
	CodeNotOwner:                 TaxonomyAuthorization,
	CodeImmutable:                TaxonomyState,
	CodeNotFound:                 TaxonomyState,
	CodeLimitExceeded:            TaxonomyConflict,
	CodeConfirmationExists:       TaxonomyConflict,
	CodePairDeclined:             TaxonomyConflict,
	CodeStoreUnavailable:         TaxonomyTransient,
	CodeCacheUnavailable:         TaxonomyTransient,
	CodeTimeout:                  TaxonomyTransient,
	CodeConfirmationExpired:      TaxonomyProtocol,
	CodeConfirmationUnknown:      TaxonomyProtocol,
	CodeConfirmationUnauthorized: TaxonomyProtocol,
}

// Error is the structured error carried across every component boundary.
type Error struct {
	Code      Code
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail attaches a key/value detail and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now()}
}

// Newf constructs a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a Code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Timestamp: time.Now(), Cause: err}
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode extracts the Code, or "" if err is not an *Error.
func GetErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetTaxonomy classifies err's error family, or "" if err is not an *Error.
func GetTaxonomy(err error) Taxonomy {
	return taxonomyByCode[GetErrorCode(err)]
}

// IsRetryable reports whether the error's taxonomy is Transient — callers
// should treat these as "skip this attempt" rather than propagate a hard
// failure, since a store or cache outage is expected to clear on its own.
func IsRetryable(err error) bool {
	return GetTaxonomy(err) == TaxonomyTransient
}

// IsClientVisible reports whether an error should be surfaced to the caller
// synchronously (Validation, Authorization, State, Conflict, Protocol)
// rather than swallowed as internal/transient.
func IsClientVisible(err error) bool {
	switch GetTaxonomy(err) {
	case TaxonomyValidation, TaxonomyAuthorization, TaxonomyState, TaxonomyConflict, TaxonomyProtocol:
		return true
	default:
		return false
	}
}
