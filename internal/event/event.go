package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the result of the underlying transaction.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeRefunded Outcome = "refunded"
)

// Kind is the event classification derived from the outcome.
type Kind string

const (
	KindReceived Kind = "received"
	KindFailed   Kind = "failed"
	KindRefunded Kind = "refunded"
)

// KindFor maps a transaction outcome to the event kind it produces.
func KindFor(o Outcome) Kind {
	switch o {
	case OutcomeFailed:
		return KindFailed
	case OutcomeRefunded:
		return KindRefunded
	default:
		return KindReceived
	}
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomeRefunded:
		return true
	}
	return false
}

// Event is a single payment transaction as it flows through the pipeline.
// Events are immutable once created; components pass them by pointer but never write to them.
type Event struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Kind       Kind            `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"` // payment method: card, bank_transfer, ...
	Outcome    Outcome         `json:"outcome"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Succeeded reports whether the transaction outcome was a success.
func (e *Event) Succeeded() bool { return e.Outcome == OutcomeSuccess }

// Type is the broadcast frame name used on the live stream.
func (e *Event) Type() string {
	return "payment_" + string(e.Kind)
}
