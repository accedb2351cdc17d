// Package receipt issues signed verification receipts. A receipt is a
// compact JWS over the verified challenge that merchants can validate
// offline against the shared secret.
package receipt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authpay/server/internal/model"
)

// Claims are the receipt token claims.
type Claims struct {
	ChallengeID string  `json:"challenge_id"`
	MerchantID  string  `json:"merchant_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	jwt.RegisteredClaims
}

// Signer signs and verifies receipts with an HMAC secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a receipt signer.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign issues a receipt for a verified challenge.
func (s *Signer) Sign(ch model.Challenge) (string, error) {
	if ch.VerifiedAt == nil {
		return "", fmt.Errorf("challenge %s is not verified", ch.ID)
	}
	now := *ch.VerifiedAt
	claims := Claims{
		ChallengeID: ch.ID,
		MerchantID:  ch.MerchantID,
		Amount:      ch.Amount,
		Currency:    ch.Currency,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ch.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a receipt token.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid receipt")
	}
	return claims, nil
}
