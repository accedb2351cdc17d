// Package verifier checks the proof a caller submits when completing a
// challenge. The lifecycle service only sees the Verifier interface, so the
// placeholder can be replaced by real per-factor verification (push
// callback, OTP, WebAuthn assertion) without touching challenge logic.
package verifier

import (
	"context"
	"strings"

	"github.com/authpay/server/internal/model"
)

// Verifier decides whether a submitted proof completes the challenge.
type Verifier interface {
	Verify(ctx context.Context, ch model.Challenge, proof string) (bool, error)
}

// AnyProof accepts any non-empty proof. This mirrors the current provider
// integration, where the factor itself is completed out of band and the
// proof is only an acknowledgement token.
type AnyProof struct{}

var _ Verifier = AnyProof{}

func (AnyProof) Verify(_ context.Context, _ model.Challenge, proof string) (bool, error) {
	return strings.TrimSpace(proof) != "", nil
}

// ByMethod routes proofs of the form "method:value" to a per-factor
// verifier. Proofs without a recognized method prefix fall through to the
// fallback verifier.
type ByMethod struct {
	verifiers map[string]Verifier
	fallback  Verifier
}

var _ Verifier = (*ByMethod)(nil)

// NewByMethod creates a method-routing verifier.
func NewByMethod(fallback Verifier) *ByMethod {
	return &ByMethod{
		verifiers: make(map[string]Verifier),
		fallback:  fallback,
	}
}

// Register installs a verifier for a factor method (e.g. "otp", "push",
// "webauthn"). Later registrations replace earlier ones.
func (m *ByMethod) Register(method string, v Verifier) {
	m.verifiers[strings.ToLower(method)] = v
}

func (m *ByMethod) Verify(ctx context.Context, ch model.Challenge, proof string) (bool, error) {
	method, value, ok := strings.Cut(proof, ":")
	if ok {
		if v, found := m.verifiers[strings.ToLower(strings.TrimSpace(method))]; found {
			return v.Verify(ctx, ch, value)
		}
	}
	return m.fallback.Verify(ctx, ch, proof)
}
