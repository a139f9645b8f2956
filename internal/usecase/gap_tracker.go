package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/logger"
	"TasaPull/pkg/util"
)

var (
	errUnknownRateType = errors.New("unknown rate type")
	errNoObservations  = errors.New("no config and no observations to bootstrap from")
)

// VerifyOptions tunes a Verify run. The zero value verifies the whole known range and
// persists the result.
type VerifyOptions struct {
	// DryRun computes the report without saving the config.
	DryRun bool
}

// GapTracker computes and persists the missing dates of each rate type. The observation
// store is the ground truth; the config document is a refreshable cache of it.
type GapTracker struct {
	obs     domrepo.ObservationStore
	cfgs    domrepo.ConfigStore
	locks   *RateLocks
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewGapTracker(obs domrepo.ObservationStore, cfgs domrepo.ConfigStore, locks *RateLocks, metrics domrepo.Metrics, log *logger.Logger) *GapTracker {
	if locks == nil {
		locks = NewRateLocks()
	}
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GapTracker{obs: obs, cfgs: cfgs, locks: locks, metrics: metrics, log: log, now: time.Now}
}

// Verify recomputes rt's missing dates over [fechaInicio, fechaUltima].
func (g *GapTracker) Verify(ctx context.Context, rt models.RateType, opts VerifyOptions) (*models.VerifyReport, error) {
	unlock := g.locks.Lock(rt)
	defer unlock()

	cfg, _, err := g.load(ctx, rt, true)
	if err != nil {
		return nil, err
	}

	days := util.DayRange(cfg.FechaInicio, cfg.FechaUltima)
	existing, err := g.obs.DatesWithValue(ctx, rt, cfg.FechaInicio, cfg.FechaUltima)
	if err != nil {
		return nil, models.Persistence("verify", rt, err)
	}
	have := make(map[int64]struct{}, len(existing))
	for _, d := range existing {
		have[util.DayKey(d)] = struct{}{}
	}
	missing := make([]time.Time, 0)
	for _, d := range days {
		if _, ok := have[util.DayKey(d)]; !ok {
			missing = append(missing, d)
		}
	}

	cfg.FechasFaltantes = missing
	cfg.UltimaVerificacion = g.now().UTC()
	cfg.FechaUltimaCompleta = lastComplete(cfg.FechaInicio, cfg.FechaUltima, missing)

	if !opts.DryRun {
		if err := g.cfgs.Save(ctx, cfg); err != nil {
			return nil, models.Persistence("verify", rt, err)
		}
	}
	g.metrics.RecordMissingDates(rt, len(missing))

	rep := &models.VerifyReport{
		TipoTasa:        rt,
		Status:          models.StatusSuccess,
		FechaInicio:     util.FormatDay(cfg.FechaInicio),
		FechaUltima:     util.FormatDay(cfg.FechaUltima),
		TotalDias:       len(days),
		DiasExistentes:  len(days) - len(missing),
		DiasFaltantes:   len(missing),
		FechasFaltantes: util.FormatDays(missing),
		VerificadoEn:    cfg.UltimaVerificacion,
	}
	if cfg.FechaUltimaCompleta != nil {
		rep.FechaUltimaCompleta = util.FormatDay(*cfg.FechaUltimaCompleta)
	}
	if len(missing) > 0 {
		rep.Status = models.StatusWarning
	}

	g.log.Info("verify done",
		logger.String("tipo_tasa", string(rt)),
		logger.Int("total_dias", rep.TotalDias),
		logger.Int("dias_faltantes", rep.DiasFaltantes),
	)
	return rep, nil
}

// Reconcile removes processed dates from rt's missing list and widens the bounds to cover
// them, then re-derives both bounds from the store. Days the widening brings into range
// without a value are added to the list. Returns the number of dates removed.
func (g *GapTracker) Reconcile(ctx context.Context, rt models.RateType, processed []time.Time) (int, error) {
	unlock := g.locks.Lock(rt)
	defer unlock()

	cfg, bootstrapped, err := g.load(ctx, rt, len(processed) == 0)
	if models.IsKind(err, models.KindNoData) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var prevInicio, prevUltima time.Time
	if !bootstrapped {
		prevInicio, prevUltima = cfg.FechaInicio, cfg.FechaUltima
	}

	done := make(map[int64]struct{}, len(processed))
	for _, d := range processed {
		d = util.StartOfDay(d)
		done[util.DayKey(d)] = struct{}{}
		if cfg.FechaInicio.IsZero() || d.Before(cfg.FechaInicio) {
			cfg.FechaInicio = d
		}
		if cfg.FechaUltima.IsZero() || d.After(cfg.FechaUltima) {
			cfg.FechaUltima = d
		}
	}

	first, last, ok, err := g.obs.Bounds(ctx, rt)
	if err != nil {
		return 0, models.Persistence("reconcile", rt, err)
	}
	if ok {
		cfg.FechaInicio, cfg.FechaUltima = first, last
	}

	removed := 0
	kept := cfg.FechasFaltantes[:0]
	for _, d := range cfg.FechasFaltantes {
		if _, hit := done[util.DayKey(d)]; hit {
			removed++
			continue
		}
		if d.Before(cfg.FechaInicio) || d.After(cfg.FechaUltima) {
			continue
		}
		kept = append(kept, d)
	}
	opened, err := g.openedGaps(ctx, cfg, prevInicio, prevUltima)
	if err != nil {
		return 0, err
	}
	cfg.FechasFaltantes = append(kept, opened...)
	cfg.SortMissing()
	if len(opened) > 0 {
		cfg.FechaUltimaCompleta = lastComplete(cfg.FechaInicio, cfg.FechaUltima, cfg.FechasFaltantes)
	} else if cfg.FechaUltimaCompleta != nil && len(cfg.FechasFaltantes) == 0 {
		t := cfg.FechaUltima
		cfg.FechaUltimaCompleta = &t
	}

	if err := g.cfgs.Save(ctx, cfg); err != nil {
		return 0, models.Persistence("reconcile", rt, err)
	}
	g.metrics.RecordMissingDates(rt, len(cfg.FechasFaltantes))
	if removed > 0 || len(opened) > 0 {
		g.log.Debug("reconcile updated gaps",
			logger.String("tipo_tasa", string(rt)),
			logger.Int("removed", removed),
			logger.Int("opened", len(opened)),
		)
	}
	return removed, nil
}

// openedGaps lists the days of cfg's bounds outside [prevInicio, prevUltima] that hold no
// value. Zero previous bounds mean the whole range is new.
func (g *GapTracker) openedGaps(ctx context.Context, cfg *models.RateTypeConfig, prevInicio, prevUltima time.Time) ([]time.Time, error) {
	if cfg.FechaInicio.IsZero() || cfg.FechaUltima.IsZero() {
		return nil, nil
	}
	var spans []models.DateRange
	switch {
	case prevInicio.IsZero() || prevUltima.IsZero():
		spans = append(spans, models.DateRange{Desde: cfg.FechaInicio, Hasta: cfg.FechaUltima})
	default:
		if cfg.FechaInicio.Before(prevInicio) {
			spans = append(spans, models.DateRange{Desde: cfg.FechaInicio, Hasta: util.AddDays(prevInicio, -1)})
		}
		if cfg.FechaUltima.After(prevUltima) {
			spans = append(spans, models.DateRange{Desde: util.AddDays(prevUltima, 1), Hasta: cfg.FechaUltima})
		}
	}

	var out []time.Time
	for _, span := range spans {
		existing, err := g.obs.DatesWithValue(ctx, cfg.TipoTasa, span.Desde, span.Hasta)
		if err != nil {
			return nil, models.Persistence("reconcile", cfg.TipoTasa, err)
		}
		have := make(map[int64]struct{}, len(existing))
		for _, d := range existing {
			have[util.DayKey(d)] = struct{}{}
		}
		for _, d := range util.DayRange(span.Desde, span.Hasta) {
			if _, ok := have[util.DayKey(d)]; !ok {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// RegisterMissing adds dates to rt's missing list. Dates outside the known bounds or already
// holding a value are ignored. Returns the number of dates added.
func (g *GapTracker) RegisterMissing(ctx context.Context, rt models.RateType, dates []time.Time) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	unlock := g.locks.Lock(rt)
	defer unlock()

	cfg, _, err := g.load(ctx, rt, true)
	if err != nil {
		return 0, err
	}
	existing, err := g.obs.DatesWithValue(ctx, rt, cfg.FechaInicio, cfg.FechaUltima)
	if err != nil {
		return 0, models.Persistence("register_missing", rt, err)
	}
	skip := make(map[int64]struct{}, len(existing)+len(cfg.FechasFaltantes))
	for _, d := range existing {
		skip[util.DayKey(d)] = struct{}{}
	}
	for _, d := range cfg.FechasFaltantes {
		skip[util.DayKey(d)] = struct{}{}
	}

	added := 0
	for _, d := range dates {
		d = util.StartOfDay(d)
		if d.Before(cfg.FechaInicio) || d.After(cfg.FechaUltima) {
			continue
		}
		k := util.DayKey(d)
		if _, ok := skip[k]; ok {
			continue
		}
		skip[k] = struct{}{}
		cfg.FechasFaltantes = append(cfg.FechasFaltantes, d)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	cfg.SortMissing()
	if err := g.cfgs.Save(ctx, cfg); err != nil {
		return 0, models.Persistence("register_missing", rt, err)
	}
	g.metrics.RecordMissingDates(rt, len(cfg.FechasFaltantes))
	return added, nil
}

// Monitored reports whether scheduled cycles should fetch rt. Rate types without a saved
// config are monitored.
func (g *GapTracker) Monitored(ctx context.Context, rt models.RateType) (bool, error) {
	if !rt.IsValid() {
		return false, models.NewError(models.KindConfiguration, "monitored", rt, errUnknownRateType)
	}
	cfg, err := g.cfgs.Get(ctx, rt)
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return true, nil
	case err != nil:
		return false, models.Persistence("monitored", rt, err)
	}
	return cfg.Activa, nil
}

// SetMonitored turns scheduled fetching of rt on or off and saves the config.
func (g *GapTracker) SetMonitored(ctx context.Context, rt models.RateType, activa bool) (*models.RateTypeConfig, error) {
	unlock := g.locks.Lock(rt)
	defer unlock()

	cfg, _, err := g.load(ctx, rt, false)
	if err != nil {
		return nil, err
	}
	cfg.Activa = activa
	if err := g.cfgs.Save(ctx, cfg); err != nil {
		return nil, models.Persistence("set_monitored", rt, err)
	}
	g.log.Info("monitoring changed", logger.String("tipo_tasa", string(rt)), logger.Bool("activa", activa))
	return cfg, nil
}

// Config returns rt's config, bootstrapping it from the store when absent.
// A nil config with a nil error means the rate type has no data yet.
func (g *GapTracker) Config(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error) {
	unlock := g.locks.Lock(rt)
	defer unlock()
	cfg, _, err := g.load(ctx, rt, true)
	if models.IsKind(err, models.KindNoData) {
		return nil, nil
	}
	return cfg, err
}

// load reads rt's config, filling unset bounds from the store's min/max observation.
// bootstrapped reports that the bounds came from the store rather than the saved config.
// With requireBounds, a config that still has no bounds fails with a NoData error.
func (g *GapTracker) load(ctx context.Context, rt models.RateType, requireBounds bool) (cfg *models.RateTypeConfig, bootstrapped bool, err error) {
	if !rt.IsValid() {
		return nil, false, models.NewError(models.KindConfiguration, "load_config", rt, errUnknownRateType)
	}
	cfg, err = g.cfgs.Get(ctx, rt)
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		cfg = &models.RateTypeConfig{TipoTasa: rt, Activa: true}
	case err != nil:
		return nil, false, models.Persistence("load_config", rt, err)
	}

	if cfg.FechaInicio.IsZero() || cfg.FechaUltima.IsZero() {
		first, last, ok, err := g.obs.Bounds(ctx, rt)
		if err != nil {
			return nil, false, models.Persistence("load_config", rt, err)
		}
		if ok {
			cfg.FechaInicio, cfg.FechaUltima = first, last
			bootstrapped = true
			g.log.Info("config bootstrapped from store",
				logger.String("tipo_tasa", string(rt)),
				logger.Day("fecha_inicio", first),
				logger.Day("fecha_ultima", last),
			)
		} else if requireBounds {
			return nil, false, models.NewError(models.KindNoData, "load_config", rt, errNoObservations)
		}
	}
	if !cfg.FechaInicio.IsZero() && cfg.FechaUltima.Before(cfg.FechaInicio) {
		return nil, false, models.NewError(models.KindConfiguration, "load_config", rt,
			fmt.Errorf("fechaInicio %s after fechaUltima %s", util.FormatDay(cfg.FechaInicio), util.FormatDay(cfg.FechaUltima)))
	}
	return cfg, bootstrapped, nil
}

// lastComplete is the day before the first gap, or the last day when there is none.
func lastComplete(from, to time.Time, missing []time.Time) *time.Time {
	if len(missing) == 0 {
		t := to
		return &t
	}
	if !missing[0].After(from) {
		return nil
	}
	t := util.AddDays(missing[0], -1)
	return &t
}
