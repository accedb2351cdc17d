package merchant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticValidator(t *testing.T) {
	v := NewStaticValidator(map[string]string{
		"demo_merchant": "sk_test_demo_key_12345",
		"acme":          "sk_live_acme",
	})
	ctx := context.Background()

	ok, err := v.Validate(ctx, "demo_merchant", "sk_test_demo_key_12345")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate(ctx, "demo_merchant", "sk_test_wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Validate(ctx, "unknown_merchant", "sk_test_demo_key_12345")
	require.NoError(t, err)
	assert.False(t, ok)

	// Keys belong to a single merchant; a valid key under a different id fails.
	ok, err = v.Validate(ctx, "acme", "sk_test_demo_key_12345")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticValidatorCopiesKeys(t *testing.T) {
	source := map[string]string{"demo_merchant": "original"}
	v := NewStaticValidator(source)
	source["demo_merchant"] = "mutated"

	ok, err := v.Validate(context.Background(), "demo_merchant", "original")
	require.NoError(t, err)
	assert.True(t, ok)
}
