package usecase

import (
	"sort"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/pkg/util"
)

// GroupDates merges sparse dates into maximal runs of consecutive days, sorted and disjoint.
// Duplicates collapse into one day.
func GroupDates(dates []time.Time) []models.DateRange {
	if len(dates) == 0 {
		return nil
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = util.StartOfDay(d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var out []models.DateRange
	cur := models.DateRange{Desde: days[0], Hasta: days[0], Dias: 1}
	for _, d := range days[1:] {
		switch gap := util.DaysBetween(cur.Hasta, d); {
		case gap == 0:
		case gap == 1:
			cur.Hasta = d
			cur.Dias++
		default:
			out = append(out, cur)
			cur = models.DateRange{Desde: d, Hasta: d, Dias: 1}
		}
	}
	return append(out, cur)
}

// ExpandRanges is the inverse of GroupDates.
func ExpandRanges(ranges []models.DateRange) []time.Time {
	var out []time.Time
	for _, r := range ranges {
		out = append(out, util.DayRange(r.Desde, r.Hasta)...)
	}
	return out
}
