package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authpay/server/internal/model"
)

func TestAnyProof(t *testing.T) {
	ctx := context.Background()
	var v AnyProof

	ok, err := v.Verify(ctx, model.Challenge{}, "push-ack-123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(ctx, model.Challenge{}, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(ctx, model.Challenge{}, "   ")
	require.NoError(t, err)
	assert.False(t, ok)
}

type staticVerifier struct {
	want string
	err  error
}

func (s staticVerifier) Verify(_ context.Context, _ model.Challenge, proof string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return proof == s.want, nil
}

func TestByMethodRouting(t *testing.T) {
	ctx := context.Background()
	m := NewByMethod(AnyProof{})
	m.Register("OTP", staticVerifier{want: "123456"})

	// Method lookup is case insensitive.
	ok, err := m.Verify(ctx, model.Challenge{}, "otp:123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Verify(ctx, model.Challenge{}, "OTP:000000")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unregistered method falls through to the fallback.
	ok, err = m.Verify(ctx, model.Challenge{}, "push:whatever")
	require.NoError(t, err)
	assert.True(t, ok)

	// No method prefix at all also uses the fallback.
	ok, err = m.Verify(ctx, model.Challenge{}, "bare-token")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestByMethodPropagatesErrors(t *testing.T) {
	boom := errors.New("backend unavailable")
	m := NewByMethod(AnyProof{})
	m.Register("otp", staticVerifier{err: boom})

	ok, err := m.Verify(context.Background(), model.Challenge{}, "otp:123456")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}
