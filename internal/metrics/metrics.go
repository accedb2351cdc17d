// Package metrics exposes Prometheus instrumentation for the challenge
// lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesInitialized counts issued challenges by whether MFA was required.
	ChallengesInitialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authpay_challenges_initialized_total",
		Help: "Number of challenges issued, labeled by MFA requirement.",
	}, []string{"mfa_required"})

	// Verifications counts verify attempts by outcome.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authpay_verifications_total",
		Help: "Number of verification attempts, labeled by outcome.",
	}, []string{"outcome"})

	// SweptChallenges counts challenges removed by the expiry sweeper.
	SweptChallenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authpay_swept_challenges_total",
		Help: "Number of expired challenges removed by the sweeper.",
	})

	// ActiveChallenges tracks the number of stored challenges.
	ActiveChallenges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authpay_active_challenges",
		Help: "Number of challenges currently in the store.",
	})
)

// Verification outcome labels.
const (
	OutcomeAllowed         = "allowed"
	OutcomeDenied          = "denied"
	OutcomeExpired         = "expired"
	OutcomeNotFound        = "not_found"
	OutcomeAlreadyVerified = "already_verified"
)
