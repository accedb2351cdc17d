package challenge

import (
	"errors"
	"fmt"
)

// Store state errors. Handlers map these onto 404/410/409.
var (
	// ErrNotFound is returned for unknown challenge ids.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired is returned when a challenge is past its TTL.
	ErrExpired = errors.New("challenge expired")
	// ErrAlreadyVerified is returned when a challenge was consumed before.
	ErrAlreadyVerified = errors.New("challenge already verified")
	// ErrIDCollision means a freshly generated id already exists in the
	// store. Ids come from a cryptographically sized random space, so this
	// is a programming error, not a user-facing condition.
	ErrIDCollision = errors.New("challenge id collision")
)

// Request validation errors.
var (
	// ErrInvalidCredentials is returned when the merchant id / API key pair
	// does not match.
	ErrInvalidCredentials = errors.New("invalid merchant credentials")
	// ErrMissingChallengeID is returned when a verify request has no id.
	ErrMissingChallengeID = errors.New("missing challenge_id")
)

// MissingFieldsError reports which required initialize fields were absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Fields)
}

// UnsupportedCurrencyError reports a currency outside the supported set.
type UnsupportedCurrencyError struct {
	Currency  string
	Supported []string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("unsupported currency %q (supported: %v)", e.Currency, e.Supported)
}

// AmountTooHighError reports an amount above the hard processing ceiling.
// This is distinct from the MFA threshold: the transaction is rejected
// outright, before risk evaluation runs.
type AmountTooHighError struct {
	Amount float64
	Limit  float64
}

func (e *AmountTooHighError) Error() string {
	return fmt.Sprintf("amount %v exceeds the allowed threshold %v", e.Amount, e.Limit)
}
