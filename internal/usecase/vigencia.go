package usecase

import (
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/pkg/util"
)

// VigenciaKind places a publication's effective date relative to today.
type VigenciaKind int

const (
	VigenciaSame VigenciaKind = iota
	VigenciaFuture
	VigenciaPast
)

func (k VigenciaKind) String() string {
	switch k {
	case VigenciaFuture:
		return "future"
	case VigenciaPast:
		return "past"
	default:
		return "same"
	}
}

// VigenciaPlan is the outcome of Classify.
type VigenciaPlan struct {
	Kind           VigenciaKind `json:"-"`
	Clase          string       `json:"clase"`
	FechaVigencia  time.Time    `json:"fechaVigencia"`
	Hoy            time.Time    `json:"hoy"`
	FechaUltima    time.Time    `json:"fechaUltima"` // after clamping to today
	Ajustada       bool         `json:"ajustada"`    // fechaUltima was after today
	DiferenciaDias int          `json:"diferenciaDias"`
	EsFechaFutura  bool         `json:"esFechaFutura"`
	EsFechaPasada  bool         `json:"esFechaPasada"`
	EsMismaFecha   bool         `json:"esMismaFecha"`
	// Fechas are the dates to backfill. Future plans carry the prior value forward;
	// past plans use the new publication's value.
	Fechas []time.Time `json:"fechas"`
	// Continuidad lists the dates strictly between fechaUltima and today, when the gap
	// is wider than one day.
	Continuidad []time.Time `json:"continuidad"`
}

// UsesPublication reports whether plan dates take the new publication's value.
func (p *VigenciaPlan) UsesPublication() bool { return p.Kind != VigenciaFuture }

// Classify compares the publication's effective date with today and builds the fill plan.
// cfg may be nil for a rate type without data, in which case no continuity gap is reported.
// Classify keeps no state.
func Classify(pub *models.Publication, cfg *models.RateTypeConfig, today time.Time) (*VigenciaPlan, error) {
	if pub == nil || pub.FechaVigencia.IsZero() {
		return nil, fmt.Errorf("classify: publication without fechaVigencia")
	}
	hoy := util.StartOfDay(today)
	vig := util.StartOfDay(pub.FechaVigencia)

	ultima := util.AddDays(hoy, -1)
	hasUltima := cfg != nil && !cfg.FechaUltima.IsZero()
	if hasUltima {
		ultima = util.StartOfDay(cfg.FechaUltima)
	}
	p := &VigenciaPlan{
		FechaVigencia:  vig,
		Hoy:            hoy,
		DiferenciaDias: util.DaysBetween(hoy, vig),
	}
	if ultima.After(hoy) {
		ultima = hoy
		p.Ajustada = true
	}
	p.FechaUltima = ultima

	switch {
	case vig.After(hoy):
		p.Kind, p.EsFechaFutura = VigenciaFuture, true
		p.Fechas = util.DayRange(util.AddDays(ultima, 1), util.AddDays(vig, -1))
	case vig.Before(hoy):
		p.Kind, p.EsFechaPasada = VigenciaPast, true
		p.Fechas = util.DayRange(util.AddDays(vig, 1), hoy)
	default:
		p.Kind, p.EsMismaFecha = VigenciaSame, true
	}
	p.Clase = p.Kind.String()

	if hasUltima && util.DaysBetween(ultima, hoy) > 1 {
		p.Continuidad = util.DayRange(util.AddDays(ultima, 1), util.AddDays(hoy, -1))
	}
	return p, nil
}
