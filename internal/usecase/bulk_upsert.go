package usecase

import (
	"context"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/logger"
	"TasaPull/pkg/util"
)

// BulkUpsertTracker writes per-date values of one rate type and classifies every date
// as inserted, updated or unchanged.
type BulkUpsertTracker struct {
	store   domrepo.ObservationStore
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewBulkUpsertTracker creates a tracker. events may be nil.
func NewBulkUpsertTracker(store domrepo.ObservationStore, events domrepo.EventPublisher, metrics domrepo.Metrics, log *logger.Logger) *BulkUpsertTracker {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BulkUpsertTracker{store: store, events: events, metrics: metrics, log: log, now: time.Now}
}

// Upsert normalizes entry dates to UTC midnight and writes rt's value on each of them.
// Duplicate dates resolve to the last value. Re-running identical entries modifies nothing.
func (t *BulkUpsertTracker) Upsert(ctx context.Context, rt models.RateType, entries []models.Entry, origen string) (models.UpsertResult, error) {
	if !rt.IsValid() {
		return models.UpsertResult{}, models.NewError(models.KindConfiguration, "upsert", rt, errUnknownRateType)
	}
	entries = normalizeEntries(entries)
	if len(entries) == 0 {
		return models.UpsertResult{}, nil
	}

	start := time.Now()
	var (
		res models.UpsertResult
		err error
	)
	if rs, ok := t.store.(domrepo.RowReportingStore); ok {
		res, err = t.upsertReported(ctx, rs, rt, entries)
	} else {
		res, err = t.upsertDiff(ctx, rt, entries)
	}
	if err != nil {
		t.metrics.RecordError("upsert")
		return res, models.Persistence("upsert", rt, err)
	}
	t.metrics.RecordLatency("upsert", time.Since(start).Seconds())
	t.metrics.RecordRowsWritten(rt, "inserted", res.Inserted)
	t.metrics.RecordRowsWritten(rt, "updated", len(res.FechasActualizadas))

	t.log.Debug("upsert done",
		logger.String("tipo_tasa", string(rt)),
		logger.Int("matched", res.Matched),
		logger.Int("modified", res.Modified),
		logger.Int("inserted", res.Inserted),
	)
	if res.Changed() {
		t.publish(ctx, rt, res, origen)
	}
	return res, nil
}

func (t *BulkUpsertTracker) upsertReported(ctx context.Context, rs domrepo.RowReportingStore, rt models.RateType, entries []models.Entry) (models.UpsertResult, error) {
	rows, err := rs.SetValuesReport(ctx, rt, entries)
	if err != nil {
		return models.UpsertResult{}, err
	}
	var res models.UpsertResult
	for _, r := range rows {
		switch {
		case r.Inserted:
			res.Inserted++
			res.FechasInsertadas = append(res.FechasInsertadas, r.Fecha)
		case r.Modified:
			res.Matched++
			res.Modified++
			res.FechasActualizadas = append(res.FechasActualizadas, r.Fecha)
		default:
			res.Matched++
		}
	}
	return res, nil
}

// upsertDiff classifies by reading the date records and rt's current values before the write,
// for stores that only report aggregate counts. Unchanged entries are not re-sent.
func (t *BulkUpsertTracker) upsertDiff(ctx context.Context, rt models.RateType, entries []models.Entry) (models.UpsertResult, error) {
	from, to := entries[0].Fecha, entries[len(entries)-1].Fecha

	recordDates, err := t.store.RecordDates(ctx, from, to)
	if err != nil {
		return models.UpsertResult{}, err
	}
	records := make(map[int64]struct{}, len(recordDates))
	for _, d := range recordDates {
		records[util.DayKey(d)] = struct{}{}
	}
	current, err := t.store.Values(ctx, rt, from, to)
	if err != nil {
		return models.UpsertResult{}, err
	}
	values := make(map[int64]float64, len(current))
	for _, e := range current {
		values[util.DayKey(e.Fecha)] = e.Valor
	}

	var (
		res     models.UpsertResult
		pending []models.Entry
	)
	for _, e := range entries {
		k := util.DayKey(e.Fecha)
		if _, exists := records[k]; !exists {
			res.Inserted++
			res.FechasInsertadas = append(res.FechasInsertadas, e.Fecha)
			pending = append(pending, e)
			continue
		}
		res.Matched++
		if v, ok := values[k]; ok && v == e.Valor {
			continue
		}
		res.Modified++
		res.FechasActualizadas = append(res.FechasActualizadas, e.Fecha)
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return res, nil
	}
	if _, err := t.store.SetValues(ctx, rt, pending); err != nil {
		return models.UpsertResult{}, err
	}
	return res, nil
}

func (t *BulkUpsertTracker) publish(ctx context.Context, rt models.RateType, res models.UpsertResult, origen string) {
	if t.events == nil {
		return
	}
	ev := models.UpdateEvent{
		TipoTasa:           rt,
		FechasInsertadas:   util.FormatDays(res.FechasInsertadas),
		FechasActualizadas: util.FormatDays(res.FechasActualizadas),
		Origen:             origen,
		Timestamp:          t.now().UTC(),
	}
	if err := t.events.PublishUpdate(ctx, ev); err != nil {
		t.metrics.RecordError("publish_update")
		t.log.Warn("publish update event failed", logger.String("tipo_tasa", string(rt)), logger.Error(err))
	}
}

// normalizeEntries truncates dates to UTC midnight, keeps the last value per date and sorts.
func normalizeEntries(entries []models.Entry) []models.Entry {
	if len(entries) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(entries))
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		e.Fecha = util.StartOfDay(e.Fecha)
		k := util.DayKey(e.Fecha)
		if i, ok := idx[k]; ok {
			out[i].Valor = e.Valor
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	models.SortEntries(out)
	return out
}

// entryDates returns the dates of entries, in order.
func entryDates(entries []models.Entry) []time.Time {
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Fecha
	}
	return out
}
