package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrQuotaExceeded      = errors.New("ticket quota exceeded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrKeyFetch           = errors.New("key fetch failed")
	ErrIssuance           = errors.New("token issuance failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type VerificationReason string

const (
	ReasonMalformed VerificationReason = "malformed"
	ReasonSignature VerificationReason = "signature"
	ReasonExpired   VerificationReason = "expired"
	ReasonKeyFetch  VerificationReason = "key_fetch"
	ReasonClaims    VerificationReason = "claims"
)

// VerificationError is returned for any token that does not yield a full
// identity. It always matches ErrUnauthorized.
type VerificationError struct {
	Reason VerificationReason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("token verification failed: %s: %v", e.Reason, e.Err)
}

func (e *VerificationError) Unwrap() []error {
	return joinCause(ErrUnauthorized, e.Err)
}

type KeyFetchReason string

const (
	KeyUnknown     KeyFetchReason = "unknown_kid"
	KeyNetwork     KeyFetchReason = "network"
	KeyRateLimited KeyFetchReason = "rate_limited"
	KeyMalformed   KeyFetchReason = "malformed"
)

type KeyFetchError struct {
	KID    string
	Reason KeyFetchReason
	Err    error
}

func (e *KeyFetchError) Error() string {
	msg := fmt.Sprintf("resolve key %q: %s", e.KID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyFetchError) Unwrap() []error {
	return joinCause(ErrKeyFetch, e.Err)
}

// IssuanceError describes a failed token exchange with the identity
// provider. Description is the provider's own error text and may be shown to
// the caller; Err is for logs only.
type IssuanceError struct {
	Status      int
	Description string
	Err         error
}

func (e *IssuanceError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("token issuance rejected (status %d): %s", e.Status, e.Description)
	case e.Err != nil:
		return "token issuance failed: " + e.Err.Error()
	default:
		return fmt.Sprintf("token issuance failed (status %d)", e.Status)
	}
}

func (e *IssuanceError) Unwrap() []error {
	return joinCause(ErrIssuance, e.Err)
}

func joinCause(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
