package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/authpay/server/internal/challenge"
	"github.com/authpay/server/internal/middleware"
	"github.com/authpay/server/internal/provider"
)

// ChallengeHandler handles the challenge lifecycle endpoints
type ChallengeHandler struct {
	service       *challenge.Service
	provider      provider.Client
	initLimiter   *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
	log           *zap.Logger
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(service *challenge.Service, providerClient provider.Client, log *zap.Logger) *ChallengeHandler {
	// Per-IP rate limits: 60 per 10min for init, 120 per 10min for verify
	return &ChallengeHandler{
		service:       service,
		provider:      providerClient,
		initLimiter:   middleware.NewRateLimiter(10*time.Minute, 60),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 120),
		log:           log,
	}
}

// verifyRequest is the request body for POST /authpay/verify
type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Proof       string `json:"proof"`
}

// mfaSendRequest is the request body for POST /authpay/mfa/send
type mfaSendRequest struct {
	Method   string `json:"method"`
	Username string `json:"username"`
}

// HandleInit handles POST /authpay/init
func (h *ChallengeHandler) HandleInit(w http.ResponseWriter, r *http.Request) {
	if !h.initLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req challenge.InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Initialize(r.Context(), req)
	if err != nil {
		h.respondInitError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *ChallengeHandler) respondInitError(w http.ResponseWriter, err error) {
	var missingErr *challenge.MissingFieldsError
	var currencyErr *challenge.UnsupportedCurrencyError
	var amountErr *challenge.AmountTooHighError
	switch {
	case errors.As(err, &missingErr):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":          "Missing required fields",
			"missing_fields": missingErr.Fields,
		})
	case errors.Is(err, challenge.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid merchant credentials")
	case errors.As(err, &currencyErr):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":                "Unsupported currency",
			"supported_currencies": currencyErr.Supported,
		})
	case errors.As(err, &amountErr):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Amount exceeds the allowed threshold",
			"threshold": amountErr.Limit,
		})
	default:
		h.log.Error("error initializing challenge", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// HandleVerify handles POST /authpay/verify
func (h *ChallengeHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Verify(r.Context(), req.ChallengeID, req.Proof)
	if err != nil {
		h.respondVerifyError(w, err)
		return
	}

	if !result.Allow {
		respondWithJSON(w, http.StatusBadRequest, result)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *ChallengeHandler) respondVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrMissingChallengeID):
		respondWithError(w, http.StatusBadRequest, "Missing challenge_id")
	case errors.Is(err, challenge.ErrNotFound):
		// Unknown ids read the same as expired ones, so callers cannot
		// probe which ids ever existed.
		respondDenied(w, http.StatusNotFound, "Invalid or expired challenge_id")
	case errors.Is(err, challenge.ErrExpired):
		respondDenied(w, http.StatusGone, "Challenge expired")
	case errors.Is(err, challenge.ErrAlreadyVerified):
		respondDenied(w, http.StatusConflict, "Challenge already verified")
	default:
		h.log.Error("error verifying challenge", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// HandleMFASend handles POST /authpay/mfa/send. It relays an authentication
// request to the external provider for the chosen factor.
func (h *ChallengeHandler) HandleMFASend(w http.ResponseWriter, r *http.Request) {
	var req mfaSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Method = strings.TrimSpace(req.Method)
	req.Username = strings.TrimSpace(req.Username)
	if req.Method == "" || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "method and username are required")
		return
	}
	if h.provider == nil {
		respondWithError(w, http.StatusServiceUnavailable, "authentication provider not configured")
		return
	}

	response, err := h.provider.SendAuthRequest(r.Context(), req.Username, req.Method)
	if err != nil {
		h.log.Error("error sending MFA request", zap.String("method", req.Method), zap.Error(err))
		respondWithError(w, http.StatusBadGateway, "Failed to send MFA request")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"method":   req.Method,
		"username": req.Username,
		"response": response,
	})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondDenied sends an {allow:false, reason} response for state errors
func respondDenied(w http.ResponseWriter, statusCode int, reason string) {
	respondWithJSON(w, statusCode, map[string]any{"allow": false, "reason": reason})
}
