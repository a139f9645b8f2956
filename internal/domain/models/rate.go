package models

import (
	"fmt"
	"sort"
	"time"
)

// RateType identifies a tracked rate series (tipoTasa).
type RateType string

const (
	TasaPasivaBNA      RateType = "tasaPasivaBNA"
	TasaPasivaBCRA     RateType = "tasaPasivaBCRA"
	TasaActivaBNA      RateType = "tasaActivaBNA"
	TasaActivaTnaBNA   RateType = "tasaActivaTnaBNA"
	CER                RateType = "cer"
	ICL                RateType = "icl"
	TasaActivaCNAT2601 RateType = "tasaActivaCNAT2601"
	TasaActivaCNAT2658 RateType = "tasaActivaCNAT2658"
	TasaActivaCNAT2764 RateType = "tasaActivaCNAT2764"
)

var rateTypes = []RateType{
	TasaPasivaBNA,
	TasaPasivaBCRA,
	TasaActivaBNA,
	TasaActivaTnaBNA,
	CER,
	ICL,
	TasaActivaCNAT2601,
	TasaActivaCNAT2658,
	TasaActivaCNAT2764,
}

// RateTypes returns the closed set of supported rate types.
func RateTypes() []RateType {
	return append([]RateType(nil), rateTypes...)
}

// IsValid reports whether rt belongs to the closed set.
func (rt RateType) IsValid() bool {
	for _, t := range rateTypes {
		if t == rt {
			return true
		}
	}
	return false
}

func (rt RateType) String() string { return string(rt) }

// ParseRateType validates s against the closed set.
func ParseRateType(s string) (RateType, error) {
	rt := RateType(s)
	if !rt.IsValid() {
		return "", NewError(KindConfiguration, "parse_rate_type", rt, fmt.Errorf("unknown rate type %q", s))
	}
	return rt, nil
}

// Entry is one dated value for a single rate type.
type Entry struct {
	Fecha time.Time `json:"fecha"`
	Valor float64   `json:"valor"`
}

// Observation is the per-date record: one calendar day holding a sparse set of rate values.
type Observation struct {
	Fecha  time.Time            `json:"fecha"`
	Values map[RateType]float64 `json:"values"`
}

// Value returns the value stored for rt, if any.
func (o Observation) Value(rt RateType) (float64, bool) {
	v, ok := o.Values[rt]
	return v, ok
}

// SortEntries orders entries by date ascending.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Fecha.Before(entries[j].Fecha) })
}
