package usecase

import (
	"context"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/internal/services/derivation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var priorBasis = map[string]float64{models.BasisTNA: 60, models.BasisTEM: 5, models.BasisTEA: 79.58}

func TestIngestFuturePublicationCarriesPriorValue(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 4, 18, 10, 0, 0, 0, time.UTC))
	e.seedFamily(t, "2025-04-16", priorBasis)
	e.seedFamily(t, "2025-04-17", priorBasis)

	pub := &models.Publication{
		TipoTasa:      models.TasaActivaBNA,
		FechaVigencia: day(t, "2025-04-21"),
		Basis:         map[string]float64{models.BasisTNA: 66, models.BasisTEM: 5.5, models.BasisTEA: 90},
	}
	res, err := e.runner.Ingest(ctx, pub, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "future", res.Details["clase"])
	assert.Equal(t, []string{"2025-04-18", "2025-04-19", "2025-04-20"}, res.Details["fechasPlan"])

	for _, rt := range derivation.Family(models.TasaActivaBNA) {
		prior, _ := derivation.Compute(rt, priorBasis)
		for _, s := range []string{"2025-04-18", "2025-04-19", "2025-04-20"} {
			v, ok := e.value(t, rt, s)
			require.True(t, ok, "%s missing on %s", rt, s)
			assert.InDelta(t, prior, v, 1e-8, "%s on %s", rt, s)
		}
		next, _ := derivation.Compute(rt, pub.Basis)
		v, ok := e.value(t, rt, "2025-04-21")
		require.True(t, ok)
		assert.InDelta(t, next, v, 1e-9)
	}

	cfg := e.config(t, models.TasaActivaBNA)
	assert.Equal(t, day(t, "2025-04-21"), cfg.FechaUltima)
	assert.Empty(t, cfg.FechasFaltantes)
	assert.Equal(t, day(t, "2025-04-21"), e.config(t, models.TasaActivaCNAT2764).FechaUltima)
}

func TestIngestPastPublicationUsesNewValue(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 4, 18, 9, 0, 0, 0, time.UTC))
	e.seed(t, models.TasaPasivaBNA, map[string]float64{"2025-04-11": 0.09, "2025-04-12": 0.09})

	pub := &models.Publication{
		TipoTasa:      models.TasaPasivaBNA,
		FechaVigencia: day(t, "2025-04-13"),
		Basis:         derivation.DirectPublication(models.TasaPasivaBNA, 0.11),
	}
	res, err := e.runner.Ingest(ctx, pub, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "past", res.Details["clase"])
	assert.Len(t, res.Details["fechasPlan"], 5)

	for _, s := range []string{"2025-04-13", "2025-04-14", "2025-04-15", "2025-04-16", "2025-04-17", "2025-04-18"} {
		v, ok := e.value(t, models.TasaPasivaBNA, s)
		require.True(t, ok, s)
		assert.Equal(t, 0.11, v, s)
	}
	v, _ := e.value(t, models.TasaPasivaBNA, "2025-04-12")
	assert.Equal(t, 0.09, v, "dates before vigencia are untouched")
	assert.Empty(t, e.config(t, models.TasaPasivaBNA).FechasFaltantes)
}

func TestIngestRegistersContinuidad(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 4, 18, 9, 0, 0, 0, time.UTC))
	e.seed(t, models.CER, map[string]float64{"2025-04-10": 1.5})

	pub := &models.Publication{TipoTasa: models.CER, FechaVigencia: day(t, "2025-04-18"), Basis: derivation.DirectPublication(models.CER, 1.6)}
	res, err := e.runner.Ingest(ctx, pub, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "same", res.Details["clase"])
	assert.Len(t, res.Details["continuidad"], 7)

	cfg := e.config(t, models.CER)
	assert.Equal(t, days(t, "2025-04-11", "2025-04-12", "2025-04-13", "2025-04-14", "2025-04-15", "2025-04-16", "2025-04-17"), cfg.FechasFaltantes)
}

func TestIngestRejectsPublicationWithoutComponent(t *testing.T) {
	e := newEngine(t, time.Now())
	pub := &models.Publication{TipoTasa: models.TasaActivaBNA, FechaVigencia: time.Now(), Basis: map[string]float64{models.BasisTNA: 60}}
	_, err := e.runner.Ingest(context.Background(), pub, CycleOptions{})
	assert.True(t, models.IsKind(err, models.KindStructuralSource))
}

func TestFillSkipsUnresolvableDates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	e.seed(t, models.ICL, map[string]float64{"2024-01-01": 1.25})

	res, err := e.backfill.Fill(ctx, models.ICL, days(t, "2024-06-01", "2024-01-02", "2024-01-03"), nil, FillOptions{LookbackDays: 10})
	require.NoError(t, err)
	assert.Equal(t, days(t, "2024-01-02", "2024-01-03"), res.Escritas)
	assert.Equal(t, days(t, "2024-06-01"), res.Omitidas)

	v, ok := e.value(t, models.ICL, "2024-01-03")
	assert.True(t, ok)
	assert.Equal(t, 1.25, v)
	_, ok = e.value(t, models.ICL, "2024-06-01")
	assert.False(t, ok)
}

func TestFillInvertsThroughStoredFormula(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	e.seed(t, models.TasaActivaCNAT2764, map[string]float64{"2025-01-10": 0.2})

	res, err := e.backfill.Fill(ctx, models.TasaActivaCNAT2658, days(t, "2025-01-11"), nil, FillOptions{})
	require.NoError(t, err)
	require.Len(t, res.Escritas, 1)
	v, _ := e.value(t, models.TasaActivaCNAT2658, "2025-01-11")
	assert.InDelta(t, 0.2, v, 1e-9)
	v, _ = e.value(t, models.TasaActivaCNAT2764, "2025-01-11")
	assert.InDelta(t, 0.2, v, 1e-9)

	// no TEM is stored anywhere, so tasaActivaBNA cannot be rebuilt
	res, err = e.backfill.Fill(ctx, models.TasaActivaBNA, days(t, "2025-01-12"), nil, FillOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Escritas)
	assert.Equal(t, days(t, "2025-01-12"), res.Omitidas)
}

func TestFillWithReferencePublication(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	ref := &models.Publication{TipoTasa: models.TasaActivaTnaBNA, Basis: priorBasis}

	res, err := e.backfill.Fill(ctx, models.TasaActivaTnaBNA, days(t, "2025-01-20", "2025-01-21"), ref, FillOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Escritas, 2)
	assert.Len(t, res.PorTipo, 4)
	assert.Equal(t, 2, res.PorTipo[models.TasaActivaTnaBNA].Inserted)
	assert.Equal(t, 2, res.PorTipo[models.TasaActivaBNA].Modified, "co-derived values land on the records just created")
	assert.Zero(t, res.Reconstruidas)
}

func TestFillCombinesComponentsFromDifferentDates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC))
	e.seed(t, models.TasaActivaBNA, map[string]float64{"2025-04-10": 0.2})
	e.seed(t, models.TasaActivaCNAT2658, map[string]float64{"2025-04-15": 0.25})

	res, err := e.backfill.Fill(ctx, models.TasaActivaBNA, days(t, "2025-04-11", "2025-04-16"), nil, FillOptions{})
	require.NoError(t, err)
	assert.Equal(t, days(t, "2025-04-11", "2025-04-16"), res.Escritas)
	assert.Empty(t, res.Omitidas)
	assert.Equal(t, 2, res.Reconstruidas)

	v, ok := e.value(t, models.TasaActivaBNA, "2025-04-16")
	require.True(t, ok, "TEM from 04-10 still resolves the later date")
	assert.InDelta(t, 0.2, v, 1e-9)
	v, ok = e.value(t, models.TasaActivaCNAT2764, "2025-04-16")
	require.True(t, ok)
	assert.InDelta(t, 0.25, v, 1e-9, "TEA comes from the newer CNAT2658 value")
	_, ok = e.value(t, models.TasaActivaCNAT2764, "2025-04-11")
	assert.False(t, ok, "no TEA was stored before 04-11")
}
