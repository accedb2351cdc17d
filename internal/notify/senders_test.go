package notify

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/model"
)

func TestFileSenderWritesJSON(t *testing.T) {
	dir := t.TempDir()
	sender := &FileSender{Dir: filepath.Join(dir, "outbox"), From: "noreply@authpay.dev", Company: "AuthPay"}

	msg := Message{
		Kind:  KindMFARequired,
		Email: "test@example.com",
		Challenge: model.Challenge{
			ID:         "ch_file",
			MerchantID: "demo_merchant",
			Amount:     99.99,
			Currency:   "GBP",
		},
	}
	require.NoError(t, sender.Send(context.Background(), msg))

	entries, err := os.ReadDir(filepath.Join(dir, "outbox"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "mfa_required")

	raw, err := os.ReadFile(filepath.Join(dir, "outbox", entries[0].Name()))
	require.NoError(t, err)
	var email fileEmail
	require.NoError(t, json.Unmarshal(raw, &email))
	assert.Equal(t, "noreply@authpay.dev", email.From)
	assert.Equal(t, "test@example.com", email.To)
	assert.Equal(t, "AuthPay: Verification Required", email.Subject)
	assert.Contains(t, email.Text, "GBP 99.99")
}

func TestLogSenderNeverFails(t *testing.T) {
	sender := &LogSender{Log: zap.NewNop()}
	err := sender.Send(context.Background(), Message{Kind: KindSuccess, Email: "test@example.com"})
	assert.NoError(t, err)
}
