package usecase

import (
	"context"
	"testing"
	"time"

	"TasaPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerDedupesUnresolved(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC))

	_, err := e.ledger.Record(ctx, models.CER, "range:cer", "timeout", "first", "ERR_TRANSIENT")
	require.NoError(t, err)
	got, err := e.ledger.Record(ctx, models.CER, "range:cer", "timeout", "second", "ERR_TRANSIENT")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Intentos)
	assert.Equal(t, "second", got.DetalleError)

	_, err = e.ledger.Record(ctx, models.CER, "range:cer", "layout changed", "", "ERR_STRUCTURAL")
	require.NoError(t, err)
	assert.Len(t, e.config(t, models.CER).ErroresScraping, 2)

	open, err := e.ledger.QueryUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.CER, open[0].TipoTasa)
	assert.Len(t, open[0].Errores, 2)
}

func TestLedgerResolve(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Now())
	for _, task := range []string{"a", "b"} {
		_, err := e.ledger.Record(ctx, models.ICL, task, "boom", "", "")
		require.NoError(t, err)
	}
	_, err := e.ledger.Record(ctx, models.CER, "c", "boom", "", "")
	require.NoError(t, err)

	n, err := e.ledger.Resolve(ctx, models.ICL, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.ledger.Resolve(ctx, models.ICL, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, err := e.ledger.QueryUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.CER, open[0].TipoTasa)

	// after resolution the same (task, message) opens a fresh entry
	got, err := e.ledger.Record(ctx, models.ICL, "a", "boom", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Intentos)
	assert.Len(t, e.config(t, models.ICL).ErroresScraping, 3)

	n, err = e.ledger.Resolve(ctx, models.TasaPasivaBCRA, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedgerDoesNotTouchCoverage(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, time.Now())
	e.seed(t, models.ICL, map[string]float64{"2024-01-01": 1, "2024-01-03": 1})
	_, err := e.gaps.Verify(ctx, models.ICL, VerifyOptions{})
	require.NoError(t, err)

	_, err = e.ledger.Record(ctx, models.ICL, "x", "boom", "", "")
	require.NoError(t, err)
	cfg := e.config(t, models.ICL)
	assert.Equal(t, days(t, "2024-01-02"), cfg.FechasFaltantes)
	assert.Len(t, cfg.ErroresScraping, 1)
}
