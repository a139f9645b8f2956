package repository

import (
	"context"
	"errors"
	"time"

	"TasaPull/internal/domain/models"
)

// ErrNotFound is returned by ConfigStore.Get when no config exists.
var ErrNotFound = errors.New("not found")

// WriteOutcome is the aggregate result a store reports for a field-level upsert.
type WriteOutcome struct {
	Matched  int
	Modified int
	Upserted int
}

// RowOutcome is the per-date result reported by stores that can attribute writes.
type RowOutcome struct {
	Fecha    time.Time
	Inserted bool // no record existed for the date
	Modified bool // the record existed and the field value changed
}

// ObservationStore persists per-date observations. SetValues must be a field-level,
// set-only write: values of other rate types on the same date are never touched.
type ObservationStore interface {
	// SetValues writes rt's value on each entry date, creating the date record when needed.
	SetValues(ctx context.Context, rt models.RateType, entries []models.Entry) (WriteOutcome, error)
	// DatesWithValue returns the dates in [from, to] holding a non-null value for rt, ascending.
	DatesWithValue(ctx context.Context, rt models.RateType, from, to time.Time) ([]time.Time, error)
	// Values returns rt's values in [from, to] keyed by date.
	Values(ctx context.Context, rt models.RateType, from, to time.Time) ([]models.Entry, error)
	// RecordDates returns the dates in [from, to] having a record for any rate type.
	RecordDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
	// Bounds returns the earliest and latest date with a value for rt. ok is false when none exist.
	Bounds(ctx context.Context, rt models.RateType) (first, last time.Time, ok bool, err error)
	// LastBefore returns rt's latest entry strictly before date and no earlier than notBefore.
	LastBefore(ctx context.Context, rt models.RateType, date, notBefore time.Time) (models.Entry, bool, error)
}

// RowReportingStore is implemented by stores able to report per-row outcomes atomically
// with the write. Other stores are classified by pre-fetch and diff.
type RowReportingStore interface {
	SetValuesReport(ctx context.Context, rt models.RateType, entries []models.Entry) ([]RowOutcome, error)
}

// ConfigStore persists RateTypeConfig documents keyed by rate type.
type ConfigStore interface {
	Get(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error)
	Save(ctx context.Context, cfg *models.RateTypeConfig) error
	List(ctx context.Context) ([]*models.RateTypeConfig, error)
}

// EventPublisher notifies downstream consumers about written values.
type EventPublisher interface {
	PublishUpdate(ctx context.Context, ev models.UpdateEvent) error
	Close() error
}

// PublicationSource fetches the latest publication of a rate type.
type PublicationSource interface {
	FetchPublication(ctx context.Context, rt models.RateType) (*models.Publication, error)
}

// RangeSource fetches historical values of a rate type for a date range.
type RangeSource interface {
	FetchRange(ctx context.Context, rt models.RateType, r models.DateRange) ([]models.Entry, error)
}

// Metrics records engine activity.
type Metrics interface {
	RecordRowsWritten(rt models.RateType, kind string, n int)
	RecordMissingDates(rt models.RateType, n int)
	RecordRetry(rt models.RateType, op string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRowsWritten(models.RateType, string, int) {}
func (NoopMetrics) RecordMissingDates(models.RateType, int)        {}
func (NoopMetrics) RecordRetry(models.RateType, string)            {}
func (NoopMetrics) RecordError(string)                             {}
func (NoopMetrics) RecordLatency(string, float64)                  {}
