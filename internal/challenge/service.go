package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/authpay/server/internal/merchant"
	"github.com/authpay/server/internal/metrics"
	"github.com/authpay/server/internal/model"
	"github.com/authpay/server/internal/notify"
	"github.com/authpay/server/internal/provider"
	"github.com/authpay/server/internal/receipt"
	"github.com/authpay/server/internal/risk"
	"github.com/authpay/server/internal/verifier"
)

// Service orchestrates the challenge lifecycle: risk decisioning and
// issuance on Initialize, idempotent consumption on Verify. All side effects
// (notifications, provider lookups) happen after the store transition has
// committed; their failure never reverts a challenge decision.
type Service struct {
	store      Store
	merchants  merchant.Validator
	risk       *risk.Evaluator
	proofs     verifier.Verifier
	notifier   notify.Notifier
	provider   provider.Client
	receipts   *receipt.Signer
	maxAmount  float64
	currencies []string
	log        *zap.Logger
}

// NewService creates a lifecycle service. Supported currencies are
// normalized to uppercase. The receipt signer is optional.
func NewService(
	store Store,
	merchants merchant.Validator,
	riskEval *risk.Evaluator,
	proofs verifier.Verifier,
	notifier notify.Notifier,
	providerClient provider.Client,
	receipts *receipt.Signer,
	supportedCurrencies []string,
	maxAmount float64,
	log *zap.Logger,
) *Service {
	currencies := make([]string, 0, len(supportedCurrencies))
	for _, c := range supportedCurrencies {
		currencies = append(currencies, strings.ToUpper(strings.TrimSpace(c)))
	}
	return &Service{
		store:      store,
		merchants:  merchants,
		risk:       riskEval,
		proofs:     proofs,
		notifier:   notifier,
		provider:   providerClient,
		receipts:   receipts,
		maxAmount:  maxAmount,
		currencies: currencies,
		log:        log,
	}
}

// InitializeRequest is the decoded body of POST /authpay/init.
type InitializeRequest struct {
	MerchantID string        `json:"merchant_id"`
	APIKey     string        `json:"api_key"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Email      string        `json:"email"`
	Geo        string        `json:"geo,omitempty"`
	Device     *model.Device `json:"device,omitempty"`
	CardNumber string        `json:"card_number,omitempty"`
}

// InitializeResult is the successful response of POST /authpay/init.
type InitializeResult struct {
	ChallengeID      string   `json:"challenge_id"`
	MFARequired      bool     `json:"mfa_required"`
	ExpiresInSeconds int      `json:"expires_in_seconds"`
	Reason           string   `json:"reason,omitempty"`
	AuthMethod       []string `json:"auth_method,omitempty"`
	Note             string   `json:"note,omitempty"`
}

// VerifyResult is the outcome of POST /authpay/verify once the challenge
// state checks have passed. Allow false means the proof was rejected.
type VerifyResult struct {
	Allow       bool       `json:"allow"`
	ChallengeID string     `json:"challenge_id,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	Receipt     string     `json:"receipt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Initialize validates the request, decides whether MFA is required, and
// issues a challenge. Validation fails fast: the first failing check wins.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	var missing []string
	if strings.TrimSpace(req.MerchantID) == "" {
		missing = append(missing, "merchant_id")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if req.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(req.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	valid, err := s.merchants.Validate(ctx, req.MerchantID, req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("validate merchant credentials: %w", err)
	}
	if !valid {
		s.log.Warn("invalid API key for merchant", zap.String("merchant_id", req.MerchantID))
		return nil, ErrInvalidCredentials
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !s.currencySupported(currency) {
		return nil, &UnsupportedCurrencyError{Currency: currency, Supported: s.currencies}
	}

	if req.Amount > s.maxAmount {
		return nil, &AmountTooHighError{Amount: req.Amount, Limit: s.maxAmount}
	}

	required, reason := s.risk.Evaluate(req.Amount, currency, req.Geo, req.Device, req.Email)

	ch, err := s.store.Create(ctx, model.Challenge{
		MerchantID:  req.MerchantID,
		Amount:      req.Amount,
		Currency:    currency,
		Email:       req.Email,
		Geo:         req.Geo,
		Device:      req.Device,
		MFARequired: required,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	metrics.ChallengesInitialized.WithLabelValues(fmt.Sprintf("%t", required)).Inc()
	s.log.Info("initialized challenge",
		zap.String("challenge_id", ch.ID),
		zap.String("merchant_id", ch.MerchantID),
		zap.Bool("mfa_required", required),
		zap.String("reason", string(reason)))

	if required {
		s.notifier.Notify(notify.KindMFARequired, ch.Email, ch)
		switch reason {
		case model.ReasonHighRiskLocation, model.ReasonSuspiciousEmail, model.ReasonNewDevice:
			s.notifier.Notify(notify.KindFraudAlert, ch.Email, ch)
		}
	}

	res := &InitializeResult{
		ChallengeID:      ch.ID,
		MFARequired:      required,
		ExpiresInSeconds: int(ch.ExpiresAt.Sub(ch.CreatedAt) / time.Second),
	}
	if required {
		res.Reason = string(reason)
		s.resolveAuthMethods(ctx, req.CardNumber, res)
	}
	return res, nil
}

// resolveAuthMethods asks the external provider for the user's available
// authentication methods. Every failure here is soft: the result field is
// annotated and the request still succeeds.
func (s *Service) resolveAuthMethods(ctx context.Context, cardNumber string, res *InitializeResult) {
	if strings.TrimSpace(cardNumber) == "" {
		res.Note = "no card information provided"
		return
	}
	if s.provider == nil {
		res.Note = "authentication provider not configured"
		return
	}
	user, err := s.provider.LookupUserByCard(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, provider.ErrUnknownCard) {
			res.Note = "card not attached to a user"
		} else {
			s.log.Warn("card lookup failed", zap.Error(err))
			res.Note = "authentication method lookup unavailable"
		}
		return
	}
	methods, err := s.provider.AvailableMethods(ctx, user)
	if err != nil {
		s.log.Warn("auth method lookup failed", zap.String("user", user), zap.Error(err))
		res.Note = "authentication method lookup unavailable"
		return
	}
	res.AuthMethod = methods
}

// Verify consumes the challenge and reports whether the transaction is
// allowed. The challenge is marked verified regardless of the proof outcome:
// a failed proof still burns the challenge, so it cannot be retried with a
// different proof.
func (s *Service) Verify(ctx context.Context, challengeID, proof string) (*VerifyResult, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, ErrMissingChallengeID
	}

	ch, err := s.store.MarkVerified(ctx, challengeID, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.Verifications.WithLabelValues(metrics.OutcomeNotFound).Inc()
		case errors.Is(err, ErrExpired):
			metrics.Verifications.WithLabelValues(metrics.OutcomeExpired).Inc()
		case errors.Is(err, ErrAlreadyVerified):
			metrics.Verifications.WithLabelValues(metrics.OutcomeAlreadyVerified).Inc()
		}
		return nil, err
	}

	allowed := true
	if ch.MFARequired {
		allowed, err = s.proofs.Verify(ctx, ch, proof)
		if err != nil {
			// The challenge is already consumed; a verifier failure
			// must deny, not allow a retry.
			s.log.Error("proof verification failed", zap.String("challenge_id", ch.ID), zap.Error(err))
			allowed = false
		}
	}

	if !allowed {
		metrics.Verifications.WithLabelValues(metrics.OutcomeDenied).Inc()
		s.log.Warn("challenge verification failed", zap.String("challenge_id", ch.ID))
		return &VerifyResult{Allow: false, Reason: "Invalid proof provided"}, nil
	}

	metrics.Verifications.WithLabelValues(metrics.OutcomeAllowed).Inc()
	s.log.Info("challenge verified successfully", zap.String("challenge_id", ch.ID))
	s.notifier.Notify(notify.KindSuccess, ch.Email, ch)

	res := &VerifyResult{Allow: true, ChallengeID: ch.ID, VerifiedAt: ch.VerifiedAt}
	if s.receipts != nil {
		signed, err := s.receipts.Sign(ch)
		if err != nil {
			s.log.Warn("receipt signing failed", zap.String("challenge_id", ch.ID), zap.Error(err))
		} else {
			res.Receipt = signed
		}
	}
	return res, nil
}

func (s *Service) currencySupported(currency string) bool {
	for _, c := range s.currencies {
		if c == currency {
			return true
		}
	}
	return false
}
