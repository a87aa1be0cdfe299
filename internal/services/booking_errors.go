package services

import (
	"errors"
	"fmt"
)

// Ledger error kinds. Match them with errors.Is.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidRideType   = fmt.Errorf("%w: unrecognized ride type", ErrInvalidInput)
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// LedgerError carries an error kind, a message fit for the rider and the
// underlying cause, if any.
type LedgerError struct {
	Kind    error
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func newError(kind error, message string) *LedgerError {
	return &LedgerError{Kind: kind, Message: message}
}

func storeError(message string, err error) *LedgerError {
	return &LedgerError{Kind: ErrStoreUnavailable, Message: message, Err: err}
}

// Kind codes as they appear in API error envelopes.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidRideType   = "INVALID_RIDE_TYPE"
	CodeInvalidPrice      = "INVALID_PRICE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// KindCode names the kind of err. Ride type errors are checked before the
// broader invalid input kind they refine.
func KindCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidRideType):
		return CodeInvalidRideType
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidPrice):
		return CodeInvalidPrice
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}
