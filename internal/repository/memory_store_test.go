package repository

import (
	"context"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAggregateOutcome(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	out, err := s.SetValues(ctx, models.CER, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 1}, {Fecha: d(2024, 1, 2), Valor: 2}})
	require.NoError(t, err)
	assert.Equal(t, domrepo.WriteOutcome{Upserted: 2}, out)

	out, err = s.SetValues(ctx, models.CER, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 1}, {Fecha: d(2024, 1, 2), Valor: 3}})
	require.NoError(t, err)
	assert.Equal(t, domrepo.WriteOutcome{Matched: 2, Modified: 1}, out)

	e, ok, err := s.LastBefore(ctx, models.CER, d(2024, 1, 9), d(2024, 1, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, e.Valor)
}

func TestMemoryStoreConfigsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	cfg := &models.RateTypeConfig{TipoTasa: models.ICL, FechasFaltantes: []time.Time{d(2024, 1, 2)}}
	require.NoError(t, s.Save(ctx, cfg))

	cfg.FechasFaltantes[0] = d(2030, 1, 1)
	got, err := s.Get(ctx, models.ICL)
	require.NoError(t, err)
	assert.Equal(t, d(2024, 1, 2), got.FechasFaltantes[0])

	got.FechasFaltantes = nil
	again, _ := s.Get(ctx, models.ICL)
	assert.Len(t, again.FechasFaltantes, 1)
}
