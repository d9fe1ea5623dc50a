package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error. The HTTP layer is the only place
// that translates a Kind into a status code.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindTemplateNotFound  Kind = "TEMPLATE_NOT_FOUND"
	KindMissingData       Kind = "MISSING_TEMPLATE_DATA"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindCircuitOpen       Kind = "CIRCUIT_OPEN"
	KindTransport         Kind = "TRANSPORT"
	KindBrokerUnavailable Kind = "BROKER_UNAVAILABLE"
	KindProviderTransient Kind = "PROVIDER_TRANSIENT"
	KindProviderTerminal  Kind = "PROVIDER_TERMINAL"
	KindInternal          Kind = "INTERNAL"
)

// Error is the pipeline error value. Deep helpers return these instead of
// raising transport-specific failures.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a tagged error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a tagged error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, walking the unwrap chain.
// Untagged errors report KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
