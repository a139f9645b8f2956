package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/util"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists observations and configs in Redis. Keys, under the store prefix:
//
//	obs:{YYYY-MM-DD}   hash, one field per rate type
//	idx:{tipoTasa}     zset of dates holding a value for the rate type, scored by day number
//	dates              zset of every date with a record
//	config:{tipoTasa}  JSON RateTypeConfig
//	configs            set of rate types with a config
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// setFieldScript writes one field and reports 0 for a new record, 1 for an unchanged
// value and 2 for a modified one, atomically with the write.
var setFieldScript = redis.NewScript(`
local existed = redis.call("EXISTS", KEYS[1])
local prev = redis.call("HGET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[4])
if existed == 0 then
	return 0
end
if prev == ARGV[2] then
	return 1
end
return 2
`)

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tasapull"
	}
	return &RedisStore{client: client, prefix: prefix}
}

var (
	_ domrepo.ObservationStore  = (*RedisStore)(nil)
	_ domrepo.RowReportingStore = (*RedisStore)(nil)
	_ domrepo.ConfigStore       = (*RedisStore)(nil)
)

func (s *RedisStore) SetValuesReport(ctx context.Context, rt models.RateType, entries []models.Entry) ([]domrepo.RowOutcome, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(entries))
	for i, e := range entries {
		d := util.StartOfDay(e.Fecha)
		member := util.FormatDay(d)
		cmds[i] = setFieldScript.Eval(ctx, pipe,
			[]string{s.obsKey(d), s.idxKey(rt), s.datesKey()},
			string(rt), formatValue(e.Valor), util.DayKey(d), member,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis set values: %w", err)
	}

	out := make([]domrepo.RowOutcome, len(entries))
	for i, cmd := range cmds {
		code, err := cmd.Int()
		if err != nil {
			return nil, fmt.Errorf("redis set values: %w", err)
		}
		out[i] = domrepo.RowOutcome{
			Fecha:    util.StartOfDay(entries[i].Fecha),
			Inserted: code == 0,
			Modified: code == 2,
		}
	}
	return out, nil
}

func (s *RedisStore) SetValues(ctx context.Context, rt models.RateType, entries []models.Entry) (domrepo.WriteOutcome, error) {
	rows, err := s.SetValuesReport(ctx, rt, entries)
	if err != nil {
		return domrepo.WriteOutcome{}, err
	}
	var out domrepo.WriteOutcome
	for _, r := range rows {
		switch {
		case r.Inserted:
			out.Upserted++
		case r.Modified:
			out.Matched++
			out.Modified++
		default:
			out.Matched++
		}
	}
	return out, nil
}

func (s *RedisStore) DatesWithValue(ctx context.Context, rt models.RateType, from, to time.Time) ([]time.Time, error) {
	return s.rangeDates(ctx, s.idxKey(rt), from, to)
}

func (s *RedisStore) RecordDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	return s.rangeDates(ctx, s.datesKey(), from, to)
}

func (s *RedisStore) Values(ctx context.Context, rt models.RateType, from, to time.Time) ([]models.Entry, error) {
	dates, err := s.DatesWithValue(ctx, rt, from, to)
	if err != nil || len(dates) == 0 {
		return nil, err
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(dates))
	for i, d := range dates {
		cmds[i] = pipe.HGet(ctx, s.obsKey(d), string(rt))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis values: %w", err)
	}
	out := make([]models.Entry, 0, len(dates))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis values: %w", err)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("redis values %s: %w", util.FormatDay(dates[i]), err)
		}
		out = append(out, models.Entry{Fecha: dates[i], Valor: v})
	}
	return out, nil
}

func (s *RedisStore) Bounds(ctx context.Context, rt models.RateType) (time.Time, time.Time, bool, error) {
	key := s.idxKey(rt)
	first, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("redis bounds: %w", err)
	}
	if len(first) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	last, err := s.client.ZRangeWithScores(ctx, key, -1, -1).Result()
	if err != nil || len(last) == 0 {
		return time.Time{}, time.Time{}, false, fmt.Errorf("redis bounds: %w", err)
	}
	return util.FromDayKey(int64(first[0].Score)), util.FromDayKey(int64(last[0].Score)), true, nil
}

func (s *RedisStore) LastBefore(ctx context.Context, rt models.RateType, date, notBefore time.Time) (models.Entry, bool, error) {
	members, err := s.client.ZRevRangeByScore(ctx, s.idxKey(rt), &redis.ZRangeBy{
		Max:   strconv.FormatInt(util.DayKey(date)-1, 10),
		Min:   strconv.FormatInt(util.DayKey(notBefore), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return models.Entry{}, false, fmt.Errorf("redis last before: %w", err)
	}
	if len(members) == 0 {
		return models.Entry{}, false, nil
	}
	d, ok := util.ParseDay(members[0])
	if !ok {
		return models.Entry{}, false, fmt.Errorf("redis last before: bad member %q", members[0])
	}
	vals, err := s.Values(ctx, rt, d, d)
	if err != nil || len(vals) == 0 {
		return models.Entry{}, false, err
	}
	return vals[0], true, nil
}

func (s *RedisStore) Get(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error) {
	data, err := s.client.Get(ctx, s.configKey(rt)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get config: %w", err)
	}
	var cfg models.RateTypeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", rt, err)
	}
	return &cfg, nil
}

func (s *RedisStore) Save(ctx context.Context, cfg *models.RateTypeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", cfg.TipoTasa, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.configKey(cfg.TipoTasa), data, 0)
	pipe.SAdd(ctx, s.configsKey(), string(cfg.TipoTasa))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save config: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.RateTypeConfig, error) {
	names, err := s.client.SMembers(ctx, s.configsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list configs: %w", err)
	}
	out := make([]*models.RateTypeConfig, 0, len(names))
	for _, n := range names {
		cfg, err := s.Get(ctx, models.RateType(n))
		if errors.Is(err, domrepo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	sortConfigs(out)
	return out, nil
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) rangeDates(ctx context.Context, key string, from, to time.Time) ([]time.Time, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(util.DayKey(from), 10),
		Max: strconv.FormatInt(util.DayKey(to), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range %s: %w", key, err)
	}
	out := make([]time.Time, 0, len(members))
	for _, m := range members {
		if d, ok := util.ParseDay(m); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *RedisStore) obsKey(d time.Time) string { return s.prefix + ":obs:" + util.FormatDay(d) }

func (s *RedisStore) idxKey(rt models.RateType) string { return s.prefix + ":idx:" + string(rt) }

func (s *RedisStore) datesKey() string { return s.prefix + ":dates" }

func (s *RedisStore) configKey(rt models.RateType) string { return s.prefix + ":config:" + string(rt) }

func (s *RedisStore) configsKey() string { return s.prefix + ":configs" }

func formatValue(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
