package models

import (
	"sort"
	"time"
)

// ScrapingError is one entry of a rate type's scraping-error ledger.
type ScrapingError struct {
	TaskID       string    `json:"taskId"`
	Mensaje      string    `json:"mensaje"`
	DetalleError string    `json:"detalleError,omitempty"`
	Codigo       string    `json:"codigo,omitempty"`
	Intentos     int       `json:"intentos"`
	Fecha        time.Time `json:"fecha"`
	Resuelto     bool      `json:"resuelto"`
}

// RateTypeConfig is the refreshable cache of a rate type's coverage.
// The observation store stays the ground truth.
type RateTypeConfig struct {
	TipoTasa            RateType        `json:"tipoTasa"`
	FechaInicio         time.Time       `json:"fechaInicio"`
	FechaUltima         time.Time       `json:"fechaUltima"`
	FechaUltimaCompleta *time.Time      `json:"fechaUltimaCompleta,omitempty"`
	FechasFaltantes     []time.Time     `json:"fechasFaltantes"`
	UltimaVerificacion  time.Time       `json:"ultimaVerificacion"`
	Activa              bool            `json:"activa"`
	ErroresScraping     []ScrapingError `json:"erroresScraping"`
}

// UnresolvedErrors returns the ledger entries still open.
func (c *RateTypeConfig) UnresolvedErrors() []ScrapingError {
	var out []ScrapingError
	for _, e := range c.ErroresScraping {
		if !e.Resuelto {
			out = append(out, e)
		}
	}
	return out
}

// SortMissing orders and dedupes FechasFaltantes.
func (c *RateTypeConfig) SortMissing() {
	sort.Slice(c.FechasFaltantes, func(i, j int) bool { return c.FechasFaltantes[i].Before(c.FechasFaltantes[j]) })
	out := c.FechasFaltantes[:0]
	for i, d := range c.FechasFaltantes {
		if i > 0 && d.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	c.FechasFaltantes = out
}

// Clone returns a deep copy.
func (c *RateTypeConfig) Clone() *RateTypeConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.FechasFaltantes = append([]time.Time(nil), c.FechasFaltantes...)
	cp.ErroresScraping = append([]ScrapingError(nil), c.ErroresScraping...)
	if c.FechaUltimaCompleta != nil {
		t := *c.FechaUltimaCompleta
		cp.FechaUltimaCompleta = &t
	}
	return &cp
}

// UnresolvedReport groups the open ledger entries of a rate type.
type UnresolvedReport struct {
	TipoTasa RateType        `json:"tipoTasa"`
	Errores  []ScrapingError `json:"errores"`
}
