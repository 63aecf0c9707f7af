package engine

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestCheckOldDateRecords(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) string { return now.AddDate(0, 0, -n).Format(time.RFC3339) }

	payload := fmt.Sprintf(`{"records":[
		{"id":1,"created_at":%q},
		{"id":2,"created_at":%q}
	]}`, daysAgo(40), daysAgo(5))

	ev := eventFromJSON(t, "db_query", payload)
	res, err := checkOldDateRecords(ev, "created_at", 30, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Violated {
		t.Fatal("expected violation for 40-day-old record")
	}
	// Only the 40-day record is flagged for filtering.
	if !reflect.DeepEqual(res.ViolatingRecords, []int{0}) {
		t.Errorf("ViolatingRecords = %v, want [0]", res.ViolatingRecords)
	}
}

func TestCheckOldDateRecords_MissingAndUnparsable(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	ev := eventFromJSON(t, "db_query", `{"records":[
		{"id":1},
		{"id":2,"created_at":"not a date"},
		{"id":3,"created_at":null}
	]}`)

	res, err := checkOldDateRecords(ev, "created_at", 30, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Missing/unparsable dates are not violations of this check, but
	// each is recorded in the detail list for observability.
	if res.Violated {
		t.Error("missing/unparsable dates must not count as violations")
	}
	if len(res.ViolatingRecords) != 0 {
		t.Errorf("ViolatingRecords = %v, want none", res.ViolatingRecords)
	}
	if got := len(res.Details); got != 3 {
		t.Errorf("details = %d, want 3", got)
	}
}

func TestCheckOldDateRecords_NoRecordsCollection(t *testing.T) {
	now := time.Now()
	ev := eventFromJSON(t, "db_query", `{"tool":"db_query"}`)

	res, err := checkOldDateRecords(ev, "created_at", 365, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Violated {
		t.Error("event without records must yield zero violations")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Time
	}{
		{"rfc3339", "2026-01-15T10:30:00Z", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"date only", "2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"sql timestamp", "2026-01-15 10:30:00", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"unix seconds", float64(1768473000), time.Unix(1768473000, 0).UTC()},
		{"unix millis", float64(1768473000000), time.UnixMilli(1768473000000).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDate(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, v := range []any{nil, "soon", true, []any{}, map[string]any{}} {
		if _, err := parseDate(v); err == nil {
			t.Errorf("parseDate(%#v) succeeded, want error", v)
		}
	}
}
