// Package notify delivers best-effort email notifications for challenge
// state transitions. Delivery is decoupled from the request path: the
// lifecycle service enqueues and moves on, so a slow or failing mail backend
// never delays or reverts a challenge decision.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/authpay/server/internal/model"
)

// Kind identifies the notification being sent.
type Kind string

const (
	KindMFARequired Kind = "mfa_required"
	KindFraudAlert  Kind = "fraud_alert"
	KindSuccess     Kind = "success"
)

// Message is one queued notification. Challenge is a snapshot taken at
// enqueue time; the store may mutate or sweep the record afterwards.
type Message struct {
	Kind      Kind
	Email     string
	Challenge model.Challenge
}

// Notifier is what the lifecycle service depends on.
type Notifier interface {
	Notify(kind Kind, email string, ch model.Challenge)
}

// Sender performs the actual delivery of a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Subject returns the subject line for the message.
func (m Message) Subject(company string) string {
	switch m.Kind {
	case KindFraudAlert:
		return fmt.Sprintf("%s: Fraud Alert - Action Required", company)
	case KindSuccess:
		return fmt.Sprintf("%s: Transaction Successful - %s %.2f", company, m.Challenge.Currency, m.Challenge.Amount)
	default:
		return fmt.Sprintf("%s: Verification Required", company)
	}
}

// Body returns a plain-text body for the message.
func (m Message) Body() string {
	var b strings.Builder
	switch m.Kind {
	case KindFraudAlert:
		fmt.Fprintf(&b, "Suspicious activity was detected on a transaction: %s.\n\n", fraudDescription(m.Challenge.Reason))
	case KindSuccess:
		b.WriteString("Your transaction has been successfully processed and verified.\n\n")
	default:
		b.WriteString("A transaction on your account requires additional verification.\n")
		b.WriteString("Please follow the instructions sent to your device to complete it.\n\n")
	}
	fmt.Fprintf(&b, "Amount: %s %.2f\n", m.Challenge.Currency, m.Challenge.Amount)
	fmt.Fprintf(&b, "Merchant: %s\n", m.Challenge.MerchantID)
	fmt.Fprintf(&b, "Transaction ID: %s\n", m.Challenge.ID)
	if m.Kind == KindSuccess && m.Challenge.VerifiedAt != nil {
		fmt.Fprintf(&b, "Verified at: %s\n", m.Challenge.VerifiedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\nIf you did not authorize this transaction, contact our support team immediately.\n")
	return b.String()
}

func fraudDescription(reason model.Reason) string {
	switch reason {
	case model.ReasonHighAmount:
		return "high transaction amount detected"
	case model.ReasonForeignTransaction:
		return "transaction from unusual location"
	case model.ReasonHighRiskLocation:
		return "transaction from high-risk location"
	case model.ReasonNewDevice:
		return "transaction from new or unrecognized device"
	case model.ReasonSuspiciousEmail:
		return "suspicious email domain detected"
	default:
		return "suspicious activity detected"
	}
}
