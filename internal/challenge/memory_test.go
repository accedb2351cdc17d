package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authpay/server/internal/model"
)

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sampleChallenge(mfaRequired bool) model.Challenge {
	return model.Challenge{
		MerchantID:  "demo_merchant",
		Amount:      150,
		Currency:    "USD",
		Email:       "test@example.com",
		MFARequired: mfaRequired,
		Reason:      model.ReasonHighAmount,
	}
}

func TestMemoryStore_CreateAssignsIdentityAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(15 * time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)
	assert.False(t, ch.Verified)
	assert.Nil(t, ch.VerifiedAt)
	assert.Equal(t, ch.CreatedAt.Add(15*time.Minute), ch.ExpiresAt)

	got, err := store.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	other, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)
	assert.NotEqual(t, ch.ID, other.ID)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MarkVerified(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)

	now := time.Now()
	verified, err := store.MarkVerified(ctx, ch.ID, now)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	require.NotNil(t, verified.VerifiedAt)
	assert.Equal(t, now, *verified.VerifiedAt)

	_, err = store.MarkVerified(ctx, ch.ID, now)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestMemoryStore_MarkVerifiedUnknown(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	_, err := store.MarkVerified(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiryPrecedesVerification(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)

	// Past the TTL the challenge must never verify, even unswept.
	late := ch.ExpiresAt.Add(time.Second)
	_, err = store.MarkVerified(ctx, ch.ID, late)
	assert.ErrorIs(t, err, ErrExpired)

	// The expired record was deleted on the way out.
	_, err = store.Get(ctx, ch.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiryPrecedesAlreadyVerified(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)
	_, err = store.MarkVerified(ctx, ch.ID, time.Now())
	require.NoError(t, err)

	// Expired and already verified: expiry wins.
	_, err = store.MarkVerified(ctx, ch.ID, ch.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestMemoryStore_ConcurrentVerifyAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(true))
	require.NoError(t, err)

	const callers = 50
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MarkVerified(ctx, ch.ID, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrAlreadyVerified):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent verify must win")
	assert.Equal(t, callers-1, conflicts)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	var expiresAt time.Time
	for i := 0; i < 5; i++ {
		ch, err := store.Create(ctx, sampleChallenge(false))
		require.NoError(t, err)
		expiresAt = ch.ExpiresAt
	}

	// Nothing expired yet.
	removed, err := store.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = store.Sweep(ctx, expiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	// Idempotent: a second sweep with nothing new removes nothing.
	removed, err = store.Sweep(ctx, expiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStore_SweepConcurrentWithVerify(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ch, err := store.Create(ctx, sampleChallenge(true))
		require.NoError(t, err)
		ids = append(ids, ch.ID)
	}

	// Sweep far in the future races verifies on the same ids; every verify
	// must surface a clean ErrExpired/ErrNotFound, never a torn state.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := store.Sweep(ctx, time.Now().Add(2*time.Minute))
		assert.NoError(t, err)
	}()
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.MarkVerified(ctx, id, time.Now().Add(2*time.Minute))
			if !errorsIsAny(err, ErrExpired, ErrNotFound) {
				t.Errorf("unexpected verify error during sweep race: %v", err)
			}
		}(id)
	}
	wg.Wait()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	ch, err := store.Create(ctx, sampleChallenge(false))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ch.ID))
	_, err = store.Get(ctx, ch.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an unknown id is not an error.
	assert.NoError(t, store.Delete(ctx, ch.ID))
}
