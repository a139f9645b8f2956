package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	pkgch "TasaPull/pkg/clickhouse"
	applogger "TasaPull/pkg/logger"
	"TasaPull/pkg/util"
)

// ClickHouseStore keeps observations in a narrow ReplacingMergeTree table, one row per
// (fecha, tipo_tasa). A date "record" exists when any rate type has a row on it.
// Reads use FINAL so the latest version of a row wins before merges run.
type ClickHouseStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
	now      func() time.Time
}

// ClickHouseSchema returns the idempotent DDL for database.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rate_observations (
            fecha Date,
            tipo_tasa LowCardinality(String),
            valor Float64,
            updated_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (tipo_tasa, fecha)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rate_type_configs (
            tipo_tasa String,
            doc String,
            updated_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(updated_at) ORDER BY tipo_tasa`, database),
	}
}

// NewClickHouseStore creates a store over an initialized client.
func NewClickHouseStore(ch *pkgch.Client, database string) *ClickHouseStore {
	return &ClickHouseStore{db: ch.DB(), database: database, now: time.Now}
}

// SetLogger injects a structured logger.
func (s *ClickHouseStore) SetLogger(l *applogger.Logger) { s.l = l }

var (
	_ domrepo.ObservationStore = (*ClickHouseStore)(nil)
	_ domrepo.ConfigStore      = (*ClickHouseStore)(nil)
)

func (s *ClickHouseStore) SetValues(ctx context.Context, rt models.RateType, entries []models.Entry) (domrepo.WriteOutcome, error) {
	if len(entries) == 0 {
		return domrepo.WriteOutcome{}, nil
	}
	lo, hi := entries[0].Fecha, entries[0].Fecha
	for _, e := range entries[1:] {
		if e.Fecha.Before(lo) {
			lo = e.Fecha
		}
		if e.Fecha.After(hi) {
			hi = e.Fecha
		}
	}
	existing, err := s.records(ctx, lo, hi)
	if err != nil {
		return domrepo.WriteOutcome{}, err
	}
	out := existing.apply(rt, entries)

	// multi-row VALUES, chunked
	const chunkSize = 2000
	ts := s.now().UTC()
	for start := 0; start < len(entries); start += chunkSize {
		end := min(start+chunkSize, len(entries))
		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*4)
		for _, e := range entries[start:end] {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, util.StartOfDay(e.Fecha), string(rt), e.Valor, ts)
		}
		q := fmt.Sprintf("INSERT INTO %s (fecha, tipo_tasa, valor, updated_at) VALUES %s",
			s.table("rate_observations"), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logErr("clickhouse set_values insert error", rt, err)
			return domrepo.WriteOutcome{}, fmt.Errorf("insert observations: %w", err)
		}
	}
	return out, nil
}

func (s *ClickHouseStore) DatesWithValue(ctx context.Context, rt models.RateType, from, to time.Time) ([]time.Time, error) {
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

func (s *ClickHouseStore) Values(ctx context.Context, rt models.RateType, from, to time.Time) ([]models.Entry, error) {
	q := fmt.Sprintf(`
        SELECT fecha, valor FROM %s FINAL
        WHERE tipo_tasa = ? AND fecha >= ? AND fecha <= ?
        ORDER BY fecha ASC`, s.table("rate_observations"))
	rows, err := s.db.QueryContext(ctx, q, string(rt), util.StartOfDay(from), util.StartOfDay(to))
	if err != nil {
		s.logErr("clickhouse values query error", rt, err)
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.Fecha, &e.Valor); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		e.Fecha = util.StartOfDay(e.Fecha)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) RecordDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	q := fmt.Sprintf(`
        SELECT DISTINCT fecha FROM %s FINAL
        WHERE fecha >= ? AND fecha <= ?
        ORDER BY fecha ASC`, s.table("rate_observations"))
	rows, err := s.db.QueryContext(ctx, q, util.StartOfDay(from), util.StartOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("query record dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan record date: %w", err)
		}
		out = append(out, util.StartOfDay(d))
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Bounds(ctx context.Context, rt models.RateType) (time.Time, time.Time, bool, error) {
	q := fmt.Sprintf("SELECT count(), min(fecha), max(fecha) FROM %s FINAL WHERE tipo_tasa = ?", s.table("rate_observations"))
	var (
		n      uint64
		lo, hi time.Time
	)
	if err := s.db.QueryRowContext(ctx, q, string(rt)).Scan(&n, &lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query bounds: %w", err)
	}
	if n == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return util.StartOfDay(lo), util.StartOfDay(hi), true, nil
}

func (s *ClickHouseStore) LastBefore(ctx context.Context, rt models.RateType, date, notBefore time.Time) (models.Entry, bool, error) {
	q := fmt.Sprintf(`
        SELECT fecha, valor FROM %s FINAL
        WHERE tipo_tasa = ? AND fecha < ? AND fecha >= ?
        ORDER BY fecha DESC LIMIT 1`, s.table("rate_observations"))
	var e models.Entry
	err := s.db.QueryRowContext(ctx, q, string(rt), util.StartOfDay(date), util.StartOfDay(notBefore)).Scan(&e.Fecha, &e.Valor)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, false, nil
	}
	if err != nil {
		return models.Entry{}, false, fmt.Errorf("query last before: %w", err)
	}
	e.Fecha = util.StartOfDay(e.Fecha)
	return e, true, nil
}

func (s *ClickHouseStore) Get(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error) {
	q := fmt.Sprintf("SELECT doc FROM %s FINAL WHERE tipo_tasa = ?", s.table("rate_type_configs"))
	var doc string
	err := s.db.QueryRowContext(ctx, q, string(rt)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	var cfg models.RateTypeConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", rt, err)
	}
	return &cfg, nil
}

func (s *ClickHouseStore) Save(ctx context.Context, cfg *models.RateTypeConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", cfg.TipoTasa, err)
	}
	q := fmt.Sprintf("INSERT INTO %s (tipo_tasa, doc, updated_at) VALUES (?, ?, ?)", s.table("rate_type_configs"))
	if _, err := s.db.ExecContext(ctx, q, string(cfg.TipoTasa), string(doc), s.now().UTC()); err != nil {
		s.logErr("clickhouse save_config error", cfg.TipoTasa, err)
		return fmt.Errorf("insert config: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) List(ctx context.Context) ([]*models.RateTypeConfig, error) {
	q := fmt.Sprintf("SELECT doc FROM %s FINAL ORDER BY tipo_tasa", s.table("rate_type_configs"))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	defer rows.Close()

	var out []*models.RateTypeConfig
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		var cfg models.RateTypeConfig
		if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		out = append(out, &cfg)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseStore) Close() error { return nil }

// records loads every row in [from, to] so a write can be classified before it lands.
func (s *ClickHouseStore) records(ctx context.Context, from, to time.Time) (dayRecords, error) {
	q := fmt.Sprintf(`
        SELECT fecha, tipo_tasa, valor FROM %s FINAL
        WHERE fecha >= ? AND fecha <= ?`, s.table("rate_observations"))
	rows, err := s.db.QueryContext(ctx, q, util.StartOfDay(from), util.StartOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(dayRecords)
	for rows.Next() {
		var (
			d  time.Time
			rt string
			v  float64
		)
		if err := rows.Scan(&d, &rt, &v); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		k := util.DayKey(d)
		if out[k] == nil {
			out[k] = make(map[models.RateType]float64)
		}
		out[k][models.RateType(rt)] = v
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) table(name string) string { return s.database + "." + name }

func (s *ClickHouseStore) logErr(msg string, rt models.RateType, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg, applogger.String("tipoTasa", string(rt)), applogger.Error(err))
}
