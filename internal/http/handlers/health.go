package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/authpay/server/internal/challenge"
	"github.com/authpay/server/internal/metrics"
)

// HealthHandler reports liveness and the active challenge count. Every
// health check also triggers an opportunistic sweep of expired challenges.
type HealthHandler struct {
	store   challenge.Store
	sweeper *challenge.Sweeper
	log     *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store challenge.Store, sweeper *challenge.Sweeper, log *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, sweeper: sweeper, log: log}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if _, err := h.sweeper.RunOnce(r.Context(), now); err != nil {
		h.log.Error("health check sweep failed", zap.Error(err))
	}

	active, err := h.store.Count(r.Context())
	if err != nil {
		h.log.Error("health check count failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	metrics.ActiveChallenges.Set(float64(active))

	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"timestamp":         now.UTC().Format(time.RFC3339),
		"active_challenges": active,
	})
}

// HandleRoot handles GET / with service instructions.
func HandleRoot(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message":      "Welcome to the MFA Verification Page",
		"instructions": "Please follow the instructions sent to your device to complete verification.",
	})
}
