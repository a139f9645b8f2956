package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/util"
)

// MemoryStore keeps observations and configs in process memory. It reports aggregate
// write counts only, like a document store's bulk upsert.
type MemoryStore struct {
	mu      sync.RWMutex
	records dayRecords
	configs map[models.RateType]*models.RateTypeConfig
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(dayRecords),
		configs: make(map[models.RateType]*models.RateTypeConfig),
	}
}

var (
	_ domrepo.ObservationStore = (*MemoryStore)(nil)
	_ domrepo.ConfigStore      = (*MemoryStore)(nil)
)

func (s *MemoryStore) SetValues(ctx context.Context, rt models.RateType, entries []models.Entry) (domrepo.WriteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domrepo.WriteOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records.apply(rt, entries), nil
}

func (s *MemoryStore) DatesWithValue(ctx context.Context, rt models.RateType, from, to time.Time) ([]time.Time, error) {
	entries, err := s.Values(ctx, rt, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Fecha
	}
	return out, nil
}

func (s *MemoryStore) Values(ctx context.Context, rt models.RateType, from, to time.Time) ([]models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := util.DayKey(from), util.DayKey(to)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	for k, rec := range s.records {
		if k < lo || k > hi {
			continue
		}
		if v, ok := rec[rt]; ok {
			out = append(out, models.Entry{Fecha: util.FromDayKey(k), Valor: v})
		}
	}
	models.SortEntries(out)
	return out, nil
}

func (s *MemoryStore) RecordDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := util.DayKey(from), util.DayKey(to)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []time.Time
	for k := range s.records {
		if k >= lo && k <= hi {
			out = append(out, util.FromDayKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *MemoryStore) Bounds(ctx context.Context, rt models.RateType) (time.Time, time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lo, hi int64
	found := false
	for k, rec := range s.records {
		if _, ok := rec[rt]; !ok {
			continue
		}
		if !found || k < lo {
			lo = k
		}
		if !found || k > hi {
			hi = k
		}
		found = true
	}
	if !found {
		return time.Time{}, time.Time{}, false, nil
	}
	return util.FromDayKey(lo), util.FromDayKey(hi), true, nil
}

func (s *MemoryStore) LastBefore(ctx context.Context, rt models.RateType, date, notBefore time.Time) (models.Entry, bool, error) {
	entries, err := s.Values(ctx, rt, notBefore, util.AddDays(date, -1))
	if err != nil || len(entries) == 0 {
		return models.Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

func (s *MemoryStore) Get(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[rt]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg *models.RateTypeConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.configs[cfg.TipoTasa] = cfg.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.RateTypeConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RateTypeConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c.Clone())
	}
	sortConfigs(out)
	return out, nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func sortConfigs(cfgs []*models.RateTypeConfig) {
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].TipoTasa < cfgs[j].TipoTasa })
}
