// Package risk decides whether a transaction needs step-up authentication.
//
// Evaluation is a fixed-order rule chain; the first matching rule wins and
// its reason is the one reported. Merchants branch on reason codes, so the
// order must not change without coordinating an API change.
package risk

import (
	"strings"

	"github.com/authpay/server/internal/model"
)

// Evaluator applies the MFA decision rules. It is pure: no clock, no I/O.
type Evaluator struct {
	amountThreshold   float64
	highRiskCountries map[string]struct{}
	homeCountry       string
	emailFragments    []string
}

// NewEvaluator builds an evaluator. Country codes are matched uppercase and
// email fragments lowercase, regardless of how they are passed in.
func NewEvaluator(amountThreshold float64, highRiskCountries []string, homeCountry string, emailFragments []string) *Evaluator {
	e := &Evaluator{
		amountThreshold:   amountThreshold,
		highRiskCountries: make(map[string]struct{}, len(highRiskCountries)),
		homeCountry:       strings.ToUpper(homeCountry),
	}
	for _, c := range highRiskCountries {
		e.highRiskCountries[strings.ToUpper(c)] = struct{}{}
	}
	for _, f := range emailFragments {
		e.emailFragments = append(e.emailFragments, strings.ToLower(f))
	}
	return e
}

// Evaluate returns whether MFA is required and the first matching reason.
// The common case is (false, ""): no rule matched.
func (e *Evaluator) Evaluate(amount float64, currency, geo string, device *model.Device, email string) (bool, model.Reason) {
	if amount >= e.amountThreshold {
		return true, model.ReasonHighAmount
	}

	if geo != "" {
		country := strings.ToUpper(strings.TrimSpace(geo))
		if _, ok := e.highRiskCountries[country]; ok {
			return true, model.ReasonHighRiskLocation
		}
		if country != e.homeCountry {
			return true, model.ReasonForeignTransaction
		}
	}

	if device != nil && device.NewDevice {
		return true, model.ReasonNewDevice
	}

	if email != "" {
		lower := strings.ToLower(email)
		for _, fragment := range e.emailFragments {
			if strings.Contains(lower, fragment) {
				return true, model.ReasonSuspiciousEmail
			}
		}
	}

	return false, ""
}
