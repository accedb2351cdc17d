package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/merchant"
	"github.com/authpay/server/internal/model"
	"github.com/authpay/server/internal/notify"
	"github.com/authpay/server/internal/provider"
	"github.com/authpay/server/internal/receipt"
	"github.com/authpay/server/internal/risk"
	"github.com/authpay/server/internal/verifier"
)

// fakeNotifier records notifications synchronously.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (f *fakeNotifier) Notify(kind notify.Kind, email string, ch model.Challenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notify.Message{Kind: kind, Email: email, Challenge: ch})
}

func (f *fakeNotifier) byKind(kind notify.Kind) []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Message
	for _, m := range f.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type serviceFixture struct {
	service  *Service
	store    *MemoryStore
	notifier *fakeNotifier
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := NewMemoryStore(15 * time.Minute)
	notifier := &fakeNotifier{}
	validator := merchant.NewStaticValidator(map[string]string{"demo_merchant": "sk_test_demo_key_12345"})
	evaluator := risk.NewEvaluator(100, []string{"NG", "PK", "IR"}, "US", []string{"temp", "tempmail", "10minutemail"})
	directory := provider.NewStaticDirectory(map[string]string{"4111111111111111": "alice"}, []string{"push", "sms"})
	signer := receipt.NewSigner("test-receipt-secret", time.Hour)
	service := NewService(store, validator, evaluator, verifier.AnyProof{}, notifier,
		directory, signer, []string{"USD", "EUR", "GBP"}, 1000, zap.NewNop())
	return &serviceFixture{service: service, store: store, notifier: notifier}
}

func validInit() InitializeRequest {
	return InitializeRequest{
		MerchantID: "demo_merchant",
		APIKey:     "sk_test_demo_key_12345",
		Amount:     50,
		Currency:   "USD",
		Email:      "test@example.com",
		Geo:        "US",
	}
}

func TestInitialize_MissingFields(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Initialize(context.Background(), InitializeRequest{})
	var missingErr *MissingFieldsError
	require.ErrorAs(t, err, &missingErr)
	assert.ElementsMatch(t, []string{"merchant_id", "api_key", "amount", "currency", "email"}, missingErr.Fields)
}

func TestInitialize_InvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.APIKey = "wrong_key"
	_, err := f.service.Initialize(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestInitialize_UnsupportedCurrency(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Currency = "jpy"
	_, err := f.service.Initialize(context.Background(), req)
	var currencyErr *UnsupportedCurrencyError
	require.ErrorAs(t, err, &currencyErr)
	assert.Equal(t, "JPY", currencyErr.Currency)
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, currencyErr.Supported)
}

func TestInitialize_AmountTooHighBeforeRiskEvaluation(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Amount = 5000
	_, err := f.service.Initialize(context.Background(), req)
	var amountErr *AmountTooHighError
	require.ErrorAs(t, err, &amountErr)
	assert.Equal(t, float64(1000), amountErr.Limit)

	// Rejected before issuance: nothing stored, nothing notified.
	count, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, f.notifier.sent)
}

func TestInitialize_NoMFARequired(t *testing.T) {
	f := newServiceFixture(t)

	res, err := f.service.Initialize(context.Background(), validInit())
	require.NoError(t, err)
	assert.False(t, res.MFARequired)
	assert.Empty(t, res.Reason)
	assert.NotEmpty(t, res.ChallengeID)
	assert.Equal(t, 900, res.ExpiresInSeconds)
	assert.Empty(t, f.notifier.sent, "no notifications when MFA is not required")
}

func TestInitialize_HighAmountRequiresMFA(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Amount = 150
	res, err := f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Equal(t, string(model.ReasonHighAmount), res.Reason)

	assert.Len(t, f.notifier.byKind(notify.KindMFARequired), 1)
	assert.Empty(t, f.notifier.byKind(notify.KindFraudAlert), "high_amount is not a fraud-alert reason")
}

func TestInitialize_FraudReasonAlsoSendsFraudAlert(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Device = &model.Device{NewDevice: true}
	res, err := f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Equal(t, string(model.ReasonNewDevice), res.Reason)

	assert.Len(t, f.notifier.byKind(notify.KindMFARequired), 1)
	assert.Len(t, f.notifier.byKind(notify.KindFraudAlert), 1)
}

func TestInitialize_CardLookup(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Amount = 150

	// No card supplied.
	res, err := f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "no card information provided", res.Note)
	assert.Empty(t, res.AuthMethod)

	// Known card resolves to auth methods.
	req.CardNumber = "4111111111111111"
	res, err = f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"push", "sms"}, res.AuthMethod)
	assert.Empty(t, res.Note)

	// Unknown card is a soft failure, not an error.
	req.CardNumber = "5500000000000004"
	res, err = f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "card not attached to a user", res.Note)
	assert.Empty(t, res.AuthMethod)
}

func TestVerify_MissingChallengeID(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Verify(context.Background(), "  ", "proof")
	assert.ErrorIs(t, err, ErrMissingChallengeID)
}

func TestVerify_UnknownChallenge(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Verify(context.Background(), "no-such-id", "proof")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerify_AutoApproveWithoutMFA(t *testing.T) {
	f := newServiceFixture(t)

	res, err := f.service.Initialize(context.Background(), validInit())
	require.NoError(t, err)
	require.False(t, res.MFARequired)

	// No proof needed when MFA was not required.
	out, err := f.service.Verify(context.Background(), res.ChallengeID, "")
	require.NoError(t, err)
	assert.True(t, out.Allow)
	assert.Equal(t, res.ChallengeID, out.ChallengeID)
	require.NotNil(t, out.VerifiedAt)
	assert.NotEmpty(t, out.Receipt)
	assert.Len(t, f.notifier.byKind(notify.KindSuccess), 1)
}

func TestVerify_FailedProofStillConsumesChallenge(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Amount = 150
	res, err := f.service.Initialize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.MFARequired)

	out, err := f.service.Verify(context.Background(), res.ChallengeID, "")
	require.NoError(t, err)
	assert.False(t, out.Allow)
	assert.Equal(t, "Invalid proof provided", out.Reason)
	assert.Empty(t, f.notifier.byKind(notify.KindSuccess))

	// Even though the proof was never accepted, the challenge is burned.
	_, err = f.service.Verify(context.Background(), res.ChallengeID, "valid-proof")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerify_ReceiptValidates(t *testing.T) {
	f := newServiceFixture(t)

	res, err := f.service.Initialize(context.Background(), validInit())
	require.NoError(t, err)
	out, err := f.service.Verify(context.Background(), res.ChallengeID, "")
	require.NoError(t, err)
	require.NotEmpty(t, out.Receipt)

	claims, err := receipt.NewSigner("test-receipt-secret", time.Hour).Verify(out.Receipt)
	require.NoError(t, err)
	assert.Equal(t, res.ChallengeID, claims.ChallengeID)
	assert.Equal(t, "demo_merchant", claims.MerchantID)
	assert.Equal(t, "USD", claims.Currency)
}

func TestVerify_ConcurrentExactlyOneSuccess(t *testing.T) {
	f := newServiceFixture(t)

	req := validInit()
	req.Amount = 150
	res, err := f.service.Initialize(context.Background(), req)
	require.NoError(t, err)

	const callers = 25
	var wg sync.WaitGroup
	type outcome struct {
		result *VerifyResult
		err    error
	}
	outcomes := make(chan outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.service.Verify(context.Background(), res.ChallengeID, "proof")
			outcomes <- outcome{result: r, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)

	allows, conflicts := 0, 0
	for o := range outcomes {
		switch {
		case o.err == nil && o.result.Allow:
			allows++
		case assert.ErrorIs(t, o.err, ErrAlreadyVerified):
			conflicts++
		}
	}
	assert.Equal(t, 1, allows, "exactly one concurrent verify may be allowed")
	assert.Equal(t, callers-1, conflicts)
	assert.Len(t, f.notifier.byKind(notify.KindSuccess), 1, "success notification dispatched once")
}
