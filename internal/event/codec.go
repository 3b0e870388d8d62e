package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// wireEvent mirrors Event with an optional amount so that a missing
// amount can be told apart from an explicit zero.
type wireEvent struct {
	ID         string              `json:"id"`
	TenantID   string              `json:"tenant_id"`
	Kind       Kind                `json:"kind"`
	Amount     decimal.NullDecimal `json:"amount"`
	Category   string              `json:"category"`
	Outcome    Outcome             `json:"outcome"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// UnmarshalJSON decodes the wire form; it does not validate.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		ID:         w.ID,
		TenantID:   w.TenantID,
		Kind:       w.Kind,
		Amount:     w.Amount.Decimal,
		Category:   w.Category,
		Outcome:    w.Outcome,
		OccurredAt: w.OccurredAt,
	}
	return nil
}

// Decode parses and validates a single event from its JSON wire form.
func Decode(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if !w.Amount.Valid {
		return nil, &ValidationError{Field: "amount", Reason: "is required"}
	}
	ev := &Event{
		ID:         w.ID,
		TenantID:   w.TenantID,
		Kind:       w.Kind,
		Amount:     w.Amount.Decimal,
		Category:   w.Category,
		Outcome:    w.Outcome,
		OccurredAt: w.OccurredAt,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode renders the event in its JSON wire form.
func Encode(ev *Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return data, nil
}

// Envelope is the frame pushed to live stream clients.
type Envelope struct {
	Type      string    `json:"type"` // payment_received | payment_failed | payment_refunded
	Payment   *Event    `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}

// Wrap builds the live stream frame for ev, stamped with now.
func Wrap(ev *Event, now time.Time) Envelope {
	return Envelope{Type: ev.Type(), Payment: ev, Timestamp: now}
}
