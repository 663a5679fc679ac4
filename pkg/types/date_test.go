package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateOfStripsTimeOfDay(t *testing.T) {
	stamp := time.Date(2024, 3, 5, 23, 58, 12, 400, time.UTC)
	d := DateOf(stamp)
	if d.String() != "2024-03-05" {
		t.Fatalf("unexpected date %s", d)
	}
	if got := d.Time().Hour(); got != 0 {
		t.Fatalf("expected midnight, got hour %d", got)
	}
}

func TestDateDaysSince(t *testing.T) {
	due := NewDate(2024, 1, 8)
	returned := NewDate(2024, 1, 10)
	if got := returned.DaysSince(due); got != 2 {
		t.Fatalf("expected 2 days, got %d", got)
	}
	if got := due.DaysSince(returned); got != -2 {
		t.Fatalf("expected -2 days, got %d", got)
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2024, 1, 8)
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"2024-01-08"` {
		t.Fatalf("unexpected encoding %s", raw)
	}

	var decoded Date
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(d) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, d)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("08/01/2024"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDateScanAcceptsSQLiteText(t *testing.T) {
	var d Date
	if err := d.Scan("2024-01-08 00:00:00+00:00"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if d.String() != "2024-01-08" {
		t.Fatalf("unexpected date %s", d)
	}
}
