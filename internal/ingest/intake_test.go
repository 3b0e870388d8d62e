package ingest_test

import (
	"errors"
	"testing"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
)

type collector struct{ evs []*event.Event }

func (c *collector) Publish(ev *event.Event)     { c.evs = append(c.evs, ev) }
func (c *collector) Submit(ev *event.Event) bool { c.evs = append(c.evs, ev); return true }

func TestAcceptJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "valid", body: `{"id":"e1","tenant_id":"t","amount":"10.5","category":"card","outcome":"success","occurred_at":"2026-10-15T12:00:00Z"}`},
		{name: "missing amount", body: `{"id":"e1","tenant_id":"t","category":"card","outcome":"success","occurred_at":"2026-10-15T12:00:00Z"}`, wantField: "amount"},
		{name: "missing id", body: `{"tenant_id":"t","amount":"1","outcome":"success","occurred_at":"2026-10-15T12:00:00Z"}`, wantField: "id"},
		{name: "missing timestamp", body: `{"id":"e1","tenant_id":"t","amount":"1","outcome":"success"}`, wantField: "occurred_at"},
		{name: "not json", body: `{"id":`, wantField: "body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub, sink := &collector{}, &collector{}
			in := ingest.New(pub, sink)
			ev, err := in.AcceptJSON([]byte(tc.body), "test")
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(pub.evs) != 1 || len(sink.evs) != 1 || pub.evs[0] != ev {
					t.Fatalf("event not published and sunk")
				}
				if ev.Kind != event.KindReceived {
					t.Errorf("kind = %q, want filled from outcome", ev.Kind)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			var ve *event.ValidationError
			if tc.wantField != "body" && (!errors.As(err, &ve) || ve.Field != tc.wantField) {
				t.Errorf("err = %v, want validation error on %s", err, tc.wantField)
			}
			if len(pub.evs) != 0 || len(sink.evs) != 0 {
				t.Errorf("rejected event entered the pipeline")
			}
		})
	}
}
