package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind tags engine failures so callers can switch on kind instead of matching messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindNoData
	KindTransientSource
	KindStructuralSource
	KindPartialBackfill
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNoData:
		return "no_data"
	case KindTransientSource:
		return "transient_source"
	case KindStructuralSource:
		return "structural_source"
	case KindPartialBackfill:
		return "partial_backfill"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// EngineError carries a kind, the failing operation and the rate type involved.
type EngineError struct {
	Kind     ErrorKind
	Op       string
	RateType RateType
	Err      error
}

func (e *EngineError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.RateType != "" {
		msg += " [" + string(e.RateType) + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns underlying error.
func (e *EngineError) Unwrap() error { return e.Err }

// NewError builds an EngineError.
func NewError(kind ErrorKind, op string, rt RateType, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, RateType: rt, Err: err}
}

// Transient marks a source failure as retryable.
func Transient(op string, rt RateType, err error) error {
	return NewError(KindTransientSource, op, rt, err)
}

// Structural marks a source failure as terminal (source layout changed, expected data absent).
func Structural(op string, rt RateType, format string, args ...interface{}) error {
	return NewError(KindStructuralSource, op, rt, fmt.Errorf(format, args...))
}

// Persistence wraps a store failure.
func Persistence(op string, rt RateType, err error) error {
	if err == nil {
		return nil
	}
	return NewError(KindPersistence, op, rt, err)
}

// KindOf extracts the kind of err. Untagged timeouts and network errors are transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientSource
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransientSource
	}
	return KindUnknown
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable is the default retry predicate for source fetches:
// structural, configuration and persistence failures are terminal, everything else is retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindStructuralSource, KindConfiguration, KindPersistence, KindNoData:
		return false
	default:
		return true
	}
}

// Code returns a stable short code for err, used in the error ledger.
func Code(err error) string {
	switch KindOf(err) {
	case KindTransientSource:
		return "ERR_TRANSIENT"
	case KindStructuralSource:
		return "ERR_STRUCTURAL"
	case KindConfiguration:
		return "ERR_CONFIG"
	case KindNoData:
		return "ERR_NO_DATA"
	case KindPersistence:
		return "ERR_PERSISTENCE"
	case KindPartialBackfill:
		return "ERR_PARTIAL_BACKFILL"
	default:
		return "ERR_UNKNOWN"
	}
}
