package derivation

import (
	"math"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
)

const tolerance = 1e-6

func bnaBasis() map[string]float64 {
	return map[string]float64{models.BasisTNA: 60, models.BasisTEM: 5, models.BasisTEA: 79.58}
}

func TestComputeBNAFamily(t *testing.T) {
	tests := []struct {
		rt   models.RateType
		want float64
	}{
		{models.TasaActivaBNA, 0.16667},
		{models.TasaActivaTnaBNA, 0.16438},
		{models.TasaActivaCNAT2658, 0.21802},
		{models.TasaActivaCNAT2764, 0.21802},
	}
	for _, tt := range tests {
		got, ok := Compute(tt.rt, bnaBasis())
		if !ok {
			t.Fatalf("%s: expected computable", tt.rt)
		}
		// published reference values are rounded to 5 decimals
		if math.Abs(got-tt.want) > 1e-5 {
			t.Fatalf("%s: got %v want ~%v", tt.rt, got, tt.want)
		}
	}
	exact := map[models.RateType]float64{
		models.TasaActivaBNA:      5.0 / 30,
		models.TasaActivaTnaBNA:   60.0 / 365,
		models.TasaActivaCNAT2658: 79.58 / 365,
	}
	for rt, want := range exact {
		got, _ := Compute(rt, bnaBasis())
		if math.Abs(got-want) > tolerance {
			t.Fatalf("%s: got %v want %v", rt, got, want)
		}
	}
}

func TestFamily(t *testing.T) {
	fam := Family(models.TasaActivaTnaBNA)
	if len(fam) != 4 || fam[0] != models.TasaActivaTnaBNA {
		t.Fatalf("unexpected family %v", fam)
	}
	if fam := Family(models.ICL); len(fam) != 1 || fam[0] != models.ICL {
		t.Fatalf("direct rate types are their own family, got %v", fam)
	}
}

func TestInvertRoundTrip(t *testing.T) {
	for _, rt := range Family(models.TasaActivaBNA) {
		v, _ := Compute(rt, bnaBasis())
		c, b := Invert(rt, v)
		again, ok := Compute(rt, map[string]float64{c: b})
		if !ok || math.Abs(again-v) > tolerance {
			t.Fatalf("%s: round trip %v -> %v", rt, v, again)
		}
	}
}

func TestReconstructBasisPrefersOrder(t *testing.T) {
	at := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	stored := map[models.RateType]models.Entry{
		models.TasaActivaCNAT2764: {Fecha: at, Valor: 0.3},
		models.TasaActivaCNAT2658: {Fecha: at, Valor: 0.2},
		models.TasaActivaBNA:      {Fecha: at, Valor: 0.1},
	}
	basis := ReconstructBasis(Family(models.TasaActivaCNAT2764), stored)
	if math.Abs(basis[models.BasisTEA]-0.3*365) > tolerance {
		t.Fatalf("expected TEA from the first rate type in order, got %v", basis[models.BasisTEA])
	}
	if math.Abs(basis[models.BasisTEM]-3) > tolerance {
		t.Fatalf("expected TEM 3, got %v", basis[models.BasisTEM])
	}
	if _, ok := basis[models.BasisTNA]; ok {
		t.Fatalf("TNA must not be invented")
	}
}

func TestReconstructBasisTakesEachComponentFromItsLatestDate(t *testing.T) {
	older := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	stored := map[models.RateType]models.Entry{
		models.TasaActivaBNA:      {Fecha: older, Valor: 0.2},
		models.TasaActivaCNAT2764: {Fecha: older, Valor: 0.3},
		models.TasaActivaCNAT2658: {Fecha: newer, Valor: 0.25},
	}
	basis := ReconstructBasis(Family(models.TasaActivaBNA), stored)
	if math.Abs(basis[models.BasisTEM]-6) > tolerance {
		t.Fatalf("expected TEM 6 from the older date, got %v", basis[models.BasisTEM])
	}
	if math.Abs(basis[models.BasisTEA]-0.25*365) > tolerance {
		t.Fatalf("expected TEA from the newer CNAT2658 value, got %v", basis[models.BasisTEA])
	}
}

func TestDeriveAllDirectAndMissing(t *testing.T) {
	pub := &models.Publication{
		TipoTasa:      models.CER,
		FechaVigencia: time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC),
		Basis:         DirectPublication(models.CER, 1.2345),
	}
	got, err := DeriveAll(models.CER, pub)
	if err != nil || got[models.CER] != 1.2345 {
		t.Fatalf("unexpected %v %v", got, err)
	}

	partial := &models.Publication{Basis: map[string]float64{models.BasisTNA: 60}}
	vals, err := DeriveAll(models.TasaActivaBNA, partial)
	if err == nil {
		t.Fatalf("expected error when TEM is missing")
	}
	if _, ok := vals[models.TasaActivaTnaBNA]; !ok {
		t.Fatalf("co-derived values with available basis are still returned")
	}
}
