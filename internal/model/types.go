package model

import (
	"time"
)

// Reason explains why MFA was required for a transaction. Values are part of
// the merchant-facing API; merchants branch on them, so the set and the
// evaluation precedence (see internal/risk) must stay stable.
type Reason string

const (
	ReasonHighAmount         Reason = "high_amount"
	ReasonForeignTransaction Reason = "foreign_transaction"
	ReasonHighRiskLocation   Reason = "high_risk_location"
	ReasonNewDevice          Reason = "new_device"
	ReasonSuspiciousEmail    Reason = "suspicious_email"
)

// Device carries the caller-supplied device descriptor for a transaction.
type Device struct {
	NewDevice bool   `json:"new_device"`
	Name      string `json:"name,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Challenge is one pending or completed MFA decision for a transaction.
// The challenge store exclusively owns these records; nothing else mutates
// them directly.
type Challenge struct {
	ID          string     `json:"challenge_id"`
	MerchantID  string     `json:"merchant_id"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Email       string     `json:"email"`
	Geo         string     `json:"geo,omitempty"`
	Device      *Device    `json:"device,omitempty"`
	MFARequired bool       `json:"mfa_required"`
	Reason      Reason     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// Expired reports whether the challenge is past its TTL at the given time.
func (c Challenge) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
