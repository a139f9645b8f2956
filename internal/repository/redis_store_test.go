package repository

import (
	"context"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test")
}

func d(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func TestRedisStoreReportsRowOutcomes(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	rows, err := s.SetValuesReport(ctx, models.CER, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 1.5}, {Fecha: d(2024, 1, 2), Valor: 1.6}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Inserted)
	assert.True(t, rows[1].Inserted)

	// another rate type on an existing date modifies the record, never inserts
	rows, err = s.SetValuesReport(ctx, models.ICL, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 10}})
	require.NoError(t, err)
	assert.False(t, rows[0].Inserted)
	assert.True(t, rows[0].Modified)

	out, err := s.SetValues(ctx, models.CER, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 1.5}, {Fecha: d(2024, 1, 2), Valor: 1.7}, {Fecha: d(2024, 1, 3), Valor: 1.8}})
	require.NoError(t, err)
	assert.Equal(t, domrepo.WriteOutcome{Matched: 2, Modified: 1, Upserted: 1}, out)

	vals, err := s.Values(ctx, models.CER, d(2024, 1, 1), d(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{
		{Fecha: d(2024, 1, 1), Valor: 1.5},
		{Fecha: d(2024, 1, 2), Valor: 1.7},
		{Fecha: d(2024, 1, 3), Valor: 1.8},
	}, vals)

	icl, err := s.Values(ctx, models.ICL, d(2024, 1, 1), d(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 10}}, icl, "field-level writes leave other types alone")
}

func TestRedisStoreDatesAndBounds(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	_, _, ok, err := s.Bounds(ctx, models.CER)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.SetValues(ctx, models.CER, []models.Entry{{Fecha: d(2024, 1, 5), Valor: 1}, {Fecha: d(2024, 1, 2), Valor: 1}})
	require.NoError(t, err)
	_, err = s.SetValues(ctx, models.ICL, []models.Entry{{Fecha: d(2024, 1, 3), Valor: 1}})
	require.NoError(t, err)

	first, last, ok, err := s.Bounds(ctx, models.CER)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d(2024, 1, 2), first)
	assert.Equal(t, d(2024, 1, 5), last)

	dates, err := s.DatesWithValue(ctx, models.CER, d(2024, 1, 1), d(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(2024, 1, 2)}, dates)

	all, err := s.RecordDates(ctx, d(2024, 1, 1), d(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(2024, 1, 2), d(2024, 1, 3), d(2024, 1, 5)}, all)
}

func TestRedisStoreLastBefore(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	_, err := s.SetValues(ctx, models.TasaPasivaBNA, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 0.1}, {Fecha: d(2024, 1, 4), Valor: 0.2}})
	require.NoError(t, err)

	e, ok, err := s.LastBefore(ctx, models.TasaPasivaBNA, d(2024, 1, 10), d(2023, 12, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Entry{Fecha: d(2024, 1, 4), Valor: 0.2}, e)

	_, ok, err = s.LastBefore(ctx, models.TasaPasivaBNA, d(2024, 1, 4), d(2024, 1, 2))
	require.NoError(t, err)
	assert.False(t, ok, "the date itself and entries before notBefore are excluded")
}

func TestRedisStoreConfigs(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	_, err := s.Get(ctx, models.CER)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	cfg := &models.RateTypeConfig{
		TipoTasa:        models.ICL,
		FechaInicio:     d(2024, 1, 1),
		FechaUltima:     d(2024, 1, 9),
		FechasFaltantes: []time.Time{d(2024, 1, 4)},
		Activa:          true,
	}
	require.NoError(t, s.Save(ctx, cfg))
	require.NoError(t, s.Save(ctx, &models.RateTypeConfig{TipoTasa: models.CER, Activa: true}))

	got, err := s.Get(ctx, models.ICL)
	require.NoError(t, err)
	assert.True(t, got.FechaUltima.Equal(cfg.FechaUltima))
	require.Len(t, got.FechasFaltantes, 1)
	assert.True(t, got.FechasFaltantes[0].Equal(d(2024, 1, 4)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.CER, list[0].TipoTasa)
	assert.Equal(t, models.ICL, list[1].TipoTasa)
}
