// Package tests wires the full HTTP stack over the in-memory store for
// end-to-end exercise. No external backends are required; the postgres and
// redis stores have their own contract tests next to their implementations.
package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/challenge"
	apphttp "github.com/authpay/server/internal/http"
	"github.com/authpay/server/internal/http/handlers"
	"github.com/authpay/server/internal/merchant"
	"github.com/authpay/server/internal/notify"
	"github.com/authpay/server/internal/provider"
	"github.com/authpay/server/internal/receipt"
	"github.com/authpay/server/internal/risk"
	"github.com/authpay/server/internal/verifier"
)

const (
	testMerchantID = "demo_merchant"
	testAPIKey     = "sk_test_demo_key_12345"
	testCard       = "4111111111111111"
	receiptSecret  = "e2e-receipt-secret"
)

// TestServer is a fully wired application over the memory store.
type TestServer struct {
	Server  *httptest.Server
	Store   *challenge.MemoryStore
	Signer  *receipt.Signer
	BaseURL string
}

// NewTestServer builds the router with all real components. The challenge
// TTL is a parameter so expiry tests can use a short one.
func NewTestServer(t *testing.T, ttl time.Duration) *TestServer {
	t.Helper()
	log := zap.NewNop()

	store := challenge.NewMemoryStore(ttl)
	validator := merchant.NewStaticValidator(map[string]string{testMerchantID: testAPIKey})
	evaluator := risk.NewEvaluator(100, []string{"NG", "PK", "IR"}, "US",
		[]string{"temp", "tempmail", "10minutemail"})
	directory := provider.NewStaticDirectory(map[string]string{testCard: "alice"}, []string{"push", "sms"})
	signer := receipt.NewSigner(receiptSecret, time.Hour)

	dispatcher := notify.NewDispatcher(&notify.LogSender{Log: log}, log)
	t.Cleanup(dispatcher.Close)

	service := challenge.NewService(store, validator, evaluator, verifier.AnyProof{},
		dispatcher, directory, signer, []string{"USD", "EUR", "GBP"}, 1000, log)
	sweeper := challenge.NewSweeper(store, time.Minute, log)

	router := apphttp.NewRouter(
		handlers.NewChallengeHandler(service, directory, log),
		handlers.NewHealthHandler(store, sweeper, log),
		log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestServer{Server: srv, Store: store, Signer: signer, BaseURL: srv.URL}
}

// PostJSON sends payload to path and decodes the JSON response.
func (ts *TestServer) PostJSON(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := ts.Server.Client().Post(ts.BaseURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

// GetJSON fetches path and decodes the JSON response.
func (ts *TestServer) GetJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := ts.Server.Client().Get(ts.BaseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), "response body: %s", raw)
	return body
}

// initBody returns a valid init payload that can be tweaked per test.
func initBody(amount float64) map[string]any {
	return map[string]any{
		"merchant_id": testMerchantID,
		"api_key":     testAPIKey,
		"amount":      amount,
		"currency":    "USD",
		"email":       "test@example.com",
		"geo":         "US",
	}
}
