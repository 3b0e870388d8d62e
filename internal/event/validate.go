package event

import (
	"fmt"
)

// ValidationError describes a malformed event rejected at ingestion.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Validate checks the fields every pipeline stage relies on.
// A missing kind is filled from the outcome rather than rejected.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return &ValidationError{Field: "id", Reason: "is required"}
	case e.TenantID == "":
		return &ValidationError{Field: "tenant_id", Reason: "is required"}
	case e.OccurredAt.IsZero():
		return &ValidationError{Field: "occurred_at", Reason: "is required"}
	case e.Amount.IsNegative():
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	case !e.Outcome.Valid():
		return &ValidationError{Field: "outcome", Reason: fmt.Sprintf("unknown value %q", e.Outcome)}
	case e.Kind != "" && e.Kind != KindFor(e.Outcome):
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("%q does not match outcome %q", e.Kind, e.Outcome)}
	}
	if e.Kind == "" {
		e.Kind = KindFor(e.Outcome)
	}
	return nil
}
