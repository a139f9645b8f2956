package repository

import (
	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/util"
)

// dayRecords holds observation records keyed by util.DayKey.
type dayRecords map[int64]map[models.RateType]float64

// apply sets rt on every entry date and tallies the outcome the way a bulk upsert
// with set-only updates reports it.
func (r dayRecords) apply(rt models.RateType, entries []models.Entry) domrepo.WriteOutcome {
	var out domrepo.WriteOutcome
	for _, e := range entries {
		k := util.DayKey(e.Fecha)
		rec, exists := r[k]
		if !exists {
			rec = make(map[models.RateType]float64)
			r[k] = rec
			out.Upserted++
		} else {
			out.Matched++
			if prev, ok := rec[rt]; !ok || prev != e.Valor {
				out.Modified++
			}
		}
		rec[rt] = e.Valor
	}
	return out
}
