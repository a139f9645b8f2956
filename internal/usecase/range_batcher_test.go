package usecase

import (
	"math/rand"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/pkg/util"
)

func TestGroupDatesConsecutiveRuns(t *testing.T) {
	got := GroupDates(days(t, "2024-01-01", "2024-01-02", "2024-01-03", "2024-01-10", "2024-01-11"))
	want := []models.DateRange{
		{Desde: day(t, "2024-01-01"), Hasta: day(t, "2024-01-03"), Dias: 3},
		{Desde: day(t, "2024-01-10"), Hasta: day(t, "2024-01-11"), Dias: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Desde.Equal(want[i].Desde) || !got[i].Hasta.Equal(want[i].Hasta) || got[i].Dias != want[i].Dias {
			t.Fatalf("range %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestGroupDatesUnsortedAndDuplicated(t *testing.T) {
	got := GroupDates(days(t, "2024-03-02", "2024-02-29", "2024-03-01", "2024-03-01"))
	if len(got) != 1 || got[0].Dias != 3 || util.FormatDay(got[0].Desde) != "2024-02-29" {
		t.Fatalf("unexpected %+v", got)
	}
	if GroupDates(nil) != nil {
		t.Fatalf("empty input must give no ranges")
	}
}

func TestGroupDatesProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for round := 0; round < 200; round++ {
		set := map[int64]struct{}{}
		var in []time.Time
		n := rnd.Intn(40)
		for i := 0; i < n; i++ {
			d := util.AddDays(base, rnd.Intn(90))
			in = append(in, d)
			set[util.DayKey(d)] = struct{}{}
		}

		ranges := GroupDates(in)
		out := ExpandRanges(ranges)
		if len(out) != len(set) {
			t.Fatalf("round %d: expanded %d dates, input has %d", round, len(out), len(set))
		}
		for _, d := range out {
			if _, ok := set[util.DayKey(d)]; !ok {
				t.Fatalf("round %d: %s not in input", round, util.FormatDay(d))
			}
		}
		for i, r := range ranges {
			if r.Dias != util.DaysBetween(r.Desde, r.Hasta)+1 {
				t.Fatalf("round %d: bad dias in %+v", round, r)
			}
			if i > 0 && util.DaysBetween(ranges[i-1].Hasta, r.Desde) <= 1 {
				t.Fatalf("round %d: ranges %d and %d overlap or could merge", round, i-1, i)
			}
		}
	}
}
