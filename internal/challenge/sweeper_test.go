package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeperRunOnce(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	sweeper := NewSweeper(store, time.Minute, zap.NewNop())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		ch, err := store.Create(ctx, sampleChallenge(false))
		require.NoError(t, err)
		ids = append(ids, ch.ID)
	}

	removed, err := sweeper.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "nothing expired yet")

	removed, err = sweeper.RunOnce(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	for _, id := range ids {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	// Idempotent: a second pass over an empty store removes nothing.
	removed, err = sweeper.RunOnce(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	sweeper := NewSweeper(store, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
