package eventlog_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/eventlog"
)

func makeEvent(i int, category string) *event.Event {
	return &event.Event{
		ID:         fmt.Sprintf("evt-%d", i),
		TenantID:   "tenant_1",
		Kind:       event.KindReceived,
		Amount:     decimal.NewFromInt(int64(100 + i)),
		Category:   category,
		Outcome:    event.OutcomeSuccess,
		OccurredAt: time.Date(2026, 10, 15, 12, 0, i, 0, time.UTC),
	}
}

func fill(l *eventlog.Log, n int) {
	for i := 1; i <= n; i++ {
		l.Append(makeEvent(i, "card"))
	}
}

func TestLog_NewestFirstAndCapped(t *testing.T) {
	l := eventlog.New(3)
	fill(l, 5)
	got := l.ExportAll()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"evt-5", "evt-4", "evt-3"} {
		if got[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestLog_PageBounds(t *testing.T) {
	cases := []struct {
		name      string
		size      int
		pageSize  int
		page      int
		wantLen   int
		wantTotal int
		wantFirst string
	}{
		{name: "empty", size: 0, pageSize: 10, page: 1, wantLen: 0, wantTotal: 0},
		{name: "first page", size: 25, pageSize: 10, page: 1, wantLen: 10, wantTotal: 3, wantFirst: "evt-25"},
		{name: "final partial page", size: 25, pageSize: 10, page: 3, wantLen: 5, wantTotal: 3, wantFirst: "evt-5"},
		{name: "exact multiple", size: 20, pageSize: 10, page: 2, wantLen: 10, wantTotal: 2, wantFirst: "evt-10"},
		{name: "beyond last clamps", size: 25, pageSize: 10, page: 9, wantLen: 5, wantTotal: 3, wantFirst: "evt-5"},
		{name: "zero clamps to first", size: 25, pageSize: 10, page: 0, wantLen: 10, wantTotal: 3, wantFirst: "evt-25"},
		{name: "negative clamps to first", size: 7, pageSize: 3, page: -4, wantLen: 3, wantTotal: 3, wantFirst: "evt-7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := eventlog.New(500)
			fill(l, tc.size)
			got, total := l.Page(tc.page, tc.pageSize)
			if len(got) != tc.wantLen || total != tc.wantTotal {
				t.Fatalf("Page(%d,%d) = %d entries, %d pages; want %d, %d",
					tc.page, tc.pageSize, len(got), total, tc.wantLen, tc.wantTotal)
			}
			if tc.wantFirst != "" && got[0].ID != tc.wantFirst {
				t.Errorf("first = %s, want %s", got[0].ID, tc.wantFirst)
			}
		})
	}
}

func TestLog_LoadKeepsNewest(t *testing.T) {
	l := eventlog.New(2)
	l.Load([]*event.Event{makeEvent(9, "card"), makeEvent(8, "card"), makeEvent(7, "card")})
	got := l.ExportAll()
	if len(got) != 2 || got[0].ID != "evt-9" || got[1].ID != "evt-8" {
		t.Fatalf("loaded = %v", got)
	}
	l.Append(makeEvent(10, "card"))
	if got := l.ExportAll(); got[0].ID != "evt-10" || got[1].ID != "evt-9" {
		t.Fatalf("after append = %v", got)
	}
}

func TestLog_TopCategory(t *testing.T) {
	l := eventlog.New(10)
	if l.TopCategory() != "" {
		t.Fatalf("empty log should have no top category")
	}
	l.Append(makeEvent(1, "paypal"))
	l.Append(makeEvent(2, "card"))
	l.Append(makeEvent(3, "paypal"))
	l.Append(makeEvent(4, "card"))
	if got := l.TopCategory(); got != "card" {
		t.Errorf("tie: top = %q, want card", got)
	}
	l.Append(makeEvent(5, "paypal"))
	if got := l.TopCategory(); got != "paypal" {
		t.Errorf("top = %q, want paypal", got)
	}
}

func TestWriteCSV(t *testing.T) {
	l := eventlog.New(10)
	l.Append(makeEvent(1, "card"))
	l.Append(makeEvent(2, "crypto"))

	var buf bytes.Buffer
	if err := eventlog.WriteCSV(&buf, l.ExportAll()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), buf.String())
	}
	if lines[0] != "Timestamp,Type,Amount,Method,Status" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-10-15T12:00:02Z,payment_received,102,crypto,success" {
		t.Errorf("row = %q", lines[1])
	}
}
