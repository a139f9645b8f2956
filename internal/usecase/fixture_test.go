package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/repository"
	"TasaPull/internal/services/derivation"
	"TasaPull/pkg/retry"
	"TasaPull/pkg/util"

	"github.com/stretchr/testify/require"
)

func day(t testing.TB, s string) time.Time {
	t.Helper()
	d, ok := util.ParseDay(s)
	if !ok {
		t.Fatalf("bad day %q", s)
	}
	return d
}

func days(t testing.TB, ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = day(t, s)
	}
	return out
}

// countingMetrics records calls the tests assert on.
type countingMetrics struct {
	domrepo.NoopMetrics
	mu      sync.Mutex
	retries map[string]int
	errors  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{retries: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) RecordRetry(rt models.RateType, op string) {
	m.mu.Lock()
	m.retries[op]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) Retries(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[op]
}

// capturingEvents keeps every published update event.
type capturingEvents struct {
	mu     sync.Mutex
	events []models.UpdateEvent
}

func (c *capturingEvents) PublishUpdate(_ context.Context, ev models.UpdateEvent) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *capturingEvents) Close() error { return nil }

type engine struct {
	store    *repository.MemoryStore
	metrics  *countingMetrics
	events   *capturingEvents
	upsert   *BulkUpsertTracker
	gaps     *GapTracker
	backfill *BackfillEngine
	ledger   *ErrorLedger
	runner   *CycleRunner
}

func noSleep(context.Context, time.Duration) error { return nil }

// newEngine wires the engine over a memory store with the clock fixed at now.
func newEngine(t testing.TB, now time.Time) *engine {
	t.Helper()
	clock := func() time.Time { return now }
	store := repository.NewMemoryStore()
	metrics := newCountingMetrics()
	events := &capturingEvents{}
	locks := NewRateLocks()

	e := &engine{store: store, metrics: metrics, events: events}
	e.upsert = NewBulkUpsertTracker(store, events, metrics, nil)
	e.upsert.now = clock
	e.gaps = NewGapTracker(store, store, locks, metrics, nil)
	e.gaps.now = clock
	e.backfill = NewBackfillEngine(store, e.upsert, e.gaps, metrics, nil)
	e.ledger = NewErrorLedger(store, locks, nil)
	e.ledger.now = clock
	policy := retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, Sleep: noSleep}
	e.runner = NewCycleRunner(e.gaps, e.upsert, e.backfill, e.ledger, metrics, nil, policy)
	e.runner.now = clock
	return e
}

// seed writes raw values without classification or reconcile.
func (e *engine) seed(t testing.TB, rt models.RateType, values map[string]float64) {
	t.Helper()
	entries := make([]models.Entry, 0, len(values))
	for s, v := range values {
		entries = append(entries, models.Entry{Fecha: day(t, s), Valor: v})
	}
	_, err := e.store.SetValues(context.Background(), rt, entries)
	require.NoError(t, err)
}

// seedFamily stores every BNA active rate derived from basis on the given date.
func (e *engine) seedFamily(t testing.TB, s string, basis map[string]float64) {
	t.Helper()
	for _, rt := range derivation.Family(models.TasaActivaBNA) {
		v, ok := derivation.Compute(rt, basis)
		require.True(t, ok)
		e.seed(t, rt, map[string]float64{s: v})
	}
}

func (e *engine) value(t testing.TB, rt models.RateType, s string) (float64, bool) {
	t.Helper()
	d := day(t, s)
	vals, err := e.store.Values(context.Background(), rt, d, d)
	require.NoError(t, err)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0].Valor, true
}

func (e *engine) config(t testing.TB, rt models.RateType) *models.RateTypeConfig {
	t.Helper()
	cfg, err := e.store.Get(context.Background(), rt)
	require.NoError(t, err)
	return cfg
}
