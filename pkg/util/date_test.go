package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestParseDayFormats(t *testing.T) {
	want := time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2025-04-18", "18/04/2025", "2025-04-18T23:59:59Z"} {
		got, ok := ParseDay(s)
		if !ok {
			t.Fatalf("%q: expected ok", s)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v want %v", s, got, want)
		}
	}
}

func TestStartOfDayUsesUTC(t *testing.T) {
	art := time.FixedZone("ART", -3*3600)
	// 22:00 ART on the 17th is 01:00 UTC on the 18th
	in := time.Date(2025, 4, 17, 22, 0, 0, 0, art)
	got := StartOfDay(in)
	if FormatDay(got) != "2025-04-18" {
		t.Fatalf("unexpected day %s", FormatDay(got))
	}
}

func TestDayRangeInclusive(t *testing.T) {
	from := time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	got := DayRange(from, to)
	if len(got) != 5 {
		t.Fatalf("expected 5 days across leap day, got %d", len(got))
	}
	if FormatDay(got[2]) != "2024-02-29" {
		t.Fatalf("expected leap day, got %s", FormatDay(got[2]))
	}
	if DayRange(to, from) != nil {
		t.Fatalf("expected empty range when from > to")
	}
}

func TestDaysBetweenAndKeys(t *testing.T) {
	a := time.Date(2025, 4, 13, 15, 0, 0, 0, time.UTC)
	b := time.Date(2025, 4, 18, 1, 0, 0, 0, time.UTC)
	if n := DaysBetween(a, b); n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
	if n := DaysBetween(b, a); n != -5 {
		t.Fatalf("expected -5, got %d", n)
	}
	if !FromDayKey(DayKey(a)).Equal(StartOfDay(a)) {
		t.Fatalf("day key round trip failed")
	}
	if !SameDay(a, StartOfDay(a)) {
		t.Fatalf("expected same day")
	}
}
