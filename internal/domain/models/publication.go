package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Basis components reported by sources.
const (
	BasisTNA = "tna" // nominal annual rate
	BasisTEM = "tem" // effective monthly rate
	BasisTEA = "tea" // effective annual rate
)

// Publication is a dated set of basis values announced by a source.
type Publication struct {
	TipoTasa      RateType           `json:"tipoTasa"`
	FechaVigencia time.Time          `json:"fechaVigencia"`
	Basis         map[string]float64 `json:"basis"`
	Fuente        string             `json:"fuente,omitempty"`
	// Reconstruida is set when the basis was rebuilt from stored values during backfill.
	Reconstruida bool `json:"reconstruida,omitempty"`
}

// GetBasis returns the basis values of p. Safe on a nil publication.
func (p *Publication) GetBasis() map[string]float64 {
	if p == nil {
		return nil
	}
	return p.Basis
}

// DateRange is a maximal run of consecutive dates.
type DateRange struct {
	Desde time.Time `json:"desde"`
	Hasta time.Time `json:"hasta"`
	Dias  int       `json:"dias"`
}

// ParseRate parses a numeric value as published by local sources.
// Accepts "79,58", "79.58", "1.234,56" and a trailing percent sign.
func ParseRate(s string) (float64, error) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if raw == "" {
		return 0, fmt.Errorf("empty rate value")
	}
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// RateValue decodes JSON numbers and localized strings like "79,58".
type RateValue float64

func (v *RateValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		f, err := ParseRate(s)
		if err != nil {
			return err
		}
		*v = RateValue(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = RateValue(f)
	return nil
}
