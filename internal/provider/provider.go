// Package provider talks to the external push/OTP authentication provider
// (a Duo-style API). The lifecycle service treats it as best-effort: lookup
// failures degrade to informational fields in the response, never errors.
package provider

import (
	"context"
	"errors"
)

// ErrUnknownCard means the card number is not attached to any known user.
var ErrUnknownCard = errors.New("card not attached to a user")

// Client is the provider capability consumed by the lifecycle service.
type Client interface {
	// LookupUserByCard resolves a card number to a provider user id.
	// Returns ErrUnknownCard when no user is attached.
	LookupUserByCard(ctx context.Context, cardNumber string) (string, error)

	// AvailableMethods returns the authentication methods the provider
	// offers for the user (push, sms, phone, ...). Opaque to the core.
	AvailableMethods(ctx context.Context, user string) ([]string, error)

	// SendAuthRequest asks the provider to start an authentication with the
	// given factor. The response is the provider's raw result.
	SendAuthRequest(ctx context.Context, user, factor string) (map[string]any, error)
}

// StaticDirectory is an in-memory Client for development and tests.
type StaticDirectory struct {
	cards   map[string]string
	methods []string
}

var _ Client = (*StaticDirectory)(nil)

// NewStaticDirectory builds a directory from a card → user map. Every known
// user advertises the same method list.
func NewStaticDirectory(cards map[string]string, methods []string) *StaticDirectory {
	if len(methods) == 0 {
		methods = []string{"push", "sms", "phone"}
	}
	copied := make(map[string]string, len(cards))
	for card, user := range cards {
		copied[card] = user
	}
	return &StaticDirectory{cards: copied, methods: methods}
}

func (d *StaticDirectory) LookupUserByCard(_ context.Context, cardNumber string) (string, error) {
	user, ok := d.cards[cardNumber]
	if !ok {
		return "", ErrUnknownCard
	}
	return user, nil
}

func (d *StaticDirectory) AvailableMethods(_ context.Context, _ string) ([]string, error) {
	methods := make([]string, len(d.methods))
	copy(methods, d.methods)
	return methods, nil
}

func (d *StaticDirectory) SendAuthRequest(_ context.Context, user, factor string) (map[string]any, error) {
	return map[string]any{
		"result":   "allow",
		"status":   "mock",
		"username": user,
		"factor":   factor,
	}, nil
}
