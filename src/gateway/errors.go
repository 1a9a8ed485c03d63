// Package gateway holds the vocabulary shared by the gateway client
// subpackages: the error taxonomy and the dialect discriminator.
package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the gateway error taxonomy. Callers are expected to
// test with errors.Is and map each class to a distinct caller-visible
// failure; they must never be collapsed into one generic error.
var (
	// ErrEncryptionUnavailable means key material is missing or misconfigured.
	ErrEncryptionUnavailable = errors.New("field encryption unavailable")
	// ErrEncryptionFailed means the cryptographic operation itself failed.
	ErrEncryptionFailed = errors.New("field encryption failed")
	// ErrNetworkTimeout means the full request/response cycle exceeded the ceiling.
	ErrNetworkTimeout = errors.New("gateway network timeout")
	// ErrNetwork is any other transport-level failure.
	ErrNetwork = errors.New("gateway network error")
	// ErrMalformedResponse means the counterpart returned an unparseable body.
	ErrMalformedResponse = errors.New("malformed gateway response")
	// ErrInvalidSignature means webhook authentication failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidStateTransition means an illegal lifecycle move was attempted.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrTokenSigningUnavailable means the signed-token header could not be
	// built; transport degrades to basic auth only.
	ErrTokenSigningUnavailable = errors.New("token signing unavailable")
)

// ValidationError reports missing or malformed caller input. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: missing or invalid field(s): %s", strings.Join(e.Fields, ", "))
}

// NewValidationError builds a ValidationError for the named fields.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Dialect selects which of the two REST dialects a request speaks.
type Dialect int

const (
	// DialectFundsTransfer is the flat push/pull/reverse dialect.
	DialectFundsTransfer Dialect = iota
	// DialectAuthorization is the nested authorize/void envelope dialect.
	// It is the only dialect that carries signed-token headers.
	DialectAuthorization
)

func (d Dialect) String() string {
	if d == DialectAuthorization {
		return "authorization"
	}
	return "fundstransfer"
}
