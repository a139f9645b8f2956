package derivation

import (
	"fmt"
	"time"

	"TasaPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimals kept for derived daily rates.
const Precision = 8

// Formula derives a daily rate as basis[Component] / Divisor.
type Formula struct {
	Component string
	Divisor   float64
}

var formulas = map[models.RateType]Formula{
	models.TasaActivaBNA:      {Component: models.BasisTEM, Divisor: 30},
	models.TasaActivaTnaBNA:   {Component: models.BasisTNA, Divisor: 365},
	models.TasaActivaCNAT2658: {Component: models.BasisTEA, Divisor: 365},
	models.TasaActivaCNAT2764: {Component: models.BasisTEA, Divisor: 365},
}

// bnaActiva are the rate types co-derived from a single BNA active-rate publication.
var bnaActiva = []models.RateType{
	models.TasaActivaBNA,
	models.TasaActivaTnaBNA,
	models.TasaActivaCNAT2658,
	models.TasaActivaCNAT2764,
}

// FormulaFor returns rt's formula. Rate types without a derivation are direct values:
// their only basis component is their own name.
func FormulaFor(rt models.RateType) Formula {
	if f, ok := formulas[rt]; ok {
		return f
	}
	return Formula{Component: string(rt), Divisor: 1}
}

// IsDerived reports whether rt is computed from a basis triple.
func IsDerived(rt models.RateType) bool {
	_, ok := formulas[rt]
	return ok
}

// Family returns rt followed by every rate type co-derived from the same publication.
func Family(rt models.RateType) []models.RateType {
	if !IsDerived(rt) {
		return []models.RateType{rt}
	}
	out := []models.RateType{rt}
	for _, t := range bnaActiva {
		if t != rt {
			out = append(out, t)
		}
	}
	return out
}

// Compute applies rt's formula to basis. ok is false when the needed component is missing.
func Compute(rt models.RateType, basis map[string]float64) (float64, bool) {
	f := FormulaFor(rt)
	v, ok := basis[f.Component]
	if !ok {
		return 0, false
	}
	return round(v / f.Divisor), true
}

// Invert recovers the basis component behind a stored value of rt.
func Invert(rt models.RateType, value float64) (component string, basis float64) {
	f := FormulaFor(rt)
	return f.Component, round(value * f.Divisor)
}

// DeriveAll computes every family member of rt that the publication's basis allows.
func DeriveAll(rt models.RateType, pub *models.Publication) (map[models.RateType]float64, error) {
	if pub == nil {
		return nil, fmt.Errorf("nil publication")
	}
	out := make(map[models.RateType]float64, 4)
	for _, t := range Family(rt) {
		if v, ok := Compute(t, pub.Basis); ok {
			out[t] = v
		}
	}
	if _, ok := out[rt]; !ok {
		return out, fmt.Errorf("publication lacks %q needed for %s", FormulaFor(rt).Component, rt)
	}
	return out, nil
}

// ReconstructBasis rebuilds basis components from stored values, inverting each through
// the formula of the rate type that stored it. A component comes from the most recent
// entry whose rate type uses it; ties go to the earlier rate type in order.
func ReconstructBasis(order []models.RateType, stored map[models.RateType]models.Entry) map[string]float64 {
	basis := make(map[string]float64, 3)
	seen := make(map[string]time.Time, 3)
	for _, t := range order {
		en, ok := stored[t]
		if !ok {
			continue
		}
		c, b := Invert(t, en.Valor)
		if at, ok := seen[c]; ok && !en.Fecha.After(at) {
			continue
		}
		basis[c] = b
		seen[c] = en.Fecha
	}
	return basis
}

// DirectPublication wraps a plain value for a non-derived rate type.
func DirectPublication(rt models.RateType, value float64) map[string]float64 {
	return map[string]float64{FormulaFor(rt).Component: value}
}

func round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(Precision).Float64()
	return f
}
