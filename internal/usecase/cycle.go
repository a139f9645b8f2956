package usecase

import (
	"context"
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/services/derivation"
	"TasaPull/pkg/logger"
	"TasaPull/pkg/retry"
	"TasaPull/pkg/util"
)

// CycleOptions tunes one reconciliation cycle. The zero value uses the runner's retry
// policy, DefaultLookbackDays and a task id derived from the cycle kind.
type CycleOptions struct {
	// Policy overrides the runner's retry policy for source fetches.
	Policy *retry.Policy
	// LookbackDays is the neighbor search window for backfill and the initial range
	// fetched for a rate type without data.
	LookbackDays int
	// TaskID keys ledger entries. Defaults to "<kind>:<tipoTasa>".
	TaskID string
	// Origen tags update events. Defaults to the cycle kind.
	Origen string
	// CarryForward fills dates a range source returned nothing for with the prior value.
	CarryForward bool
}

func (o CycleOptions) withDefaults(kind string, rt models.RateType) CycleOptions {
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.TaskID == "" {
		o.TaskID = kind + ":" + string(rt)
	}
	if o.Origen == "" {
		o.Origen = kind
	}
	return o
}

// CycleRunner drives one rate type through fetch, persist, backfill and reconcile.
// It does not guard against concurrent cycles of the same rate type; callers hold a lease.
type CycleRunner struct {
	gaps     *GapTracker
	upsert   *BulkUpsertTracker
	backfill *BackfillEngine
	ledger   *ErrorLedger
	metrics  domrepo.Metrics
	log      *logger.Logger
	policy   retry.Policy
	now      func() time.Time
}

func NewCycleRunner(
	gaps *GapTracker,
	upsert *BulkUpsertTracker,
	backfill *BackfillEngine,
	ledger *ErrorLedger,
	metrics domrepo.Metrics,
	log *logger.Logger,
	policy retry.Policy,
) *CycleRunner {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CycleRunner{
		gaps:     gaps,
		upsert:   upsert,
		backfill: backfill,
		ledger:   ledger,
		metrics:  metrics,
		log:      log,
		policy:   policy,
		now:      time.Now,
	}
}

// Verify exposes the gap tracker for the scheduler and the ops surface.
func (r *CycleRunner) Verify(ctx context.Context, rt models.RateType) (*models.Result, error) {
	rep, err := r.gaps.Verify(ctx, rt, VerifyOptions{})
	if models.IsKind(err, models.KindNoData) {
		return &models.Result{Status: models.StatusWarning, TipoTasa: rt, Message: "no data to verify"}, nil
	}
	if err != nil {
		return nil, err
	}
	msg := "no gaps found"
	if rep.DiasFaltantes > 0 {
		msg = fmt.Sprintf("%d missing dates", rep.DiasFaltantes)
	}
	return &models.Result{
		Status:   rep.Status,
		TipoTasa: rt,
		Message:  msg,
		Details:  map[string]interface{}{"report": rep},
	}, nil
}

// RunRange fetches every missing range of rt, plus the tail up to today, from a range source.
func (r *CycleRunner) RunRange(ctx context.Context, rt models.RateType, src domrepo.RangeSource, opts CycleOptions) (*models.Result, error) {
	opts = opts.withDefaults("range", rt)
	start := time.Now()
	defer func() { r.metrics.RecordLatency("cycle_range", time.Since(start).Seconds()) }()

	if res, err := r.skipUnmonitored(ctx, rt); res != nil || err != nil {
		return res, err
	}

	today := util.StartOfDay(r.now())
	ranges, err := r.pendingRanges(ctx, rt, today, opts.LookbackDays)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return &models.Result{Status: models.StatusSuccess, TipoTasa: rt, Message: "no gaps found"}, nil
	}

	var (
		entries  []models.Entry
		fetched  []models.DateRange
		failures []string
	)
	for _, dr := range ranges {
		got, _, err := retry.DoValue(ctx, r.policyFor(rt, "fetch_range", opts), func(ctx context.Context, attempt int) ([]models.Entry, error) {
			return src.FetchRange(ctx, rt, dr)
		})
		if err != nil {
			failures = append(failures, err.Error())
			if lerr := r.recordFailure(ctx, rt, opts.TaskID, "fetch range failed", err); lerr != nil {
				return nil, lerr
			}
			if models.IsKind(err, models.KindStructuralSource) {
				break
			}
			continue
		}
		fetched = append(fetched, dr)
		entries = append(entries, got...)
	}

	res := &models.Result{TipoTasa: rt, Details: map[string]interface{}{
		"rangos":    len(ranges),
		"obtenidos": len(fetched),
		"fallidos":  len(failures),
	}}
	if len(fetched) == 0 {
		res.Status = models.StatusError
		res.Message = "all range fetches failed"
		res.Details["errores"] = failures
		return res, nil
	}
	if len(entries) == 0 {
		res.Status = models.StatusWarning
		res.Message = "source returned no data"
		if len(failures) > 0 {
			res.Details["errores"] = failures
		}
		return res, nil
	}

	ur, err := r.upsert.Upsert(ctx, rt, entries, opts.Origen)
	if err != nil {
		return nil, err
	}
	processed := entryDates(normalizeEntries(entries))
	if _, err := r.gaps.Reconcile(ctx, rt, processed); err != nil {
		return nil, err
	}
	res.Details["insertadas"] = ur.Inserted
	res.Details["actualizadas"] = len(ur.FechasActualizadas)

	if opts.CarryForward {
		fr, err := r.carryForward(ctx, rt, fetched, processed, opts)
		if err != nil {
			return nil, err
		}
		if fr != nil {
			res.Details["arrastradas"] = len(fr.Escritas)
		}
	}

	switch {
	case len(failures) > 0:
		res.Status = models.StatusWarning
		res.Message = fmt.Sprintf("%d of %d ranges failed", len(failures), len(ranges))
		res.Details["errores"] = failures
	default:
		res.Status = models.StatusSuccess
		res.Message = fmt.Sprintf("%d entries processed", len(processed))
		if _, err := r.ledger.Resolve(ctx, rt, ""); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RunPublication fetches the latest publication of rt and ingests it.
func (r *CycleRunner) RunPublication(ctx context.Context, rt models.RateType, src domrepo.PublicationSource, opts CycleOptions) (*models.Result, error) {
	opts = opts.withDefaults("publication", rt)
	start := time.Now()
	defer func() { r.metrics.RecordLatency("cycle_publication", time.Since(start).Seconds()) }()

	if res, err := r.skipUnmonitored(ctx, rt); res != nil || err != nil {
		return res, err
	}

	pub, _, err := retry.DoValue(ctx, r.policyFor(rt, "fetch_publication", opts), func(ctx context.Context, attempt int) (*models.Publication, error) {
		p, err := src.FetchPublication(ctx, rt)
		if err == nil && (p == nil || p.FechaVigencia.IsZero()) {
			err = models.Structural("fetch_publication", rt, "publication without fechaVigencia")
		}
		return p, err
	})
	if err != nil {
		if lerr := r.recordFailure(ctx, rt, opts.TaskID, "fetch publication failed", err); lerr != nil {
			return nil, lerr
		}
		return &models.Result{Status: models.StatusError, TipoTasa: rt, Message: err.Error()}, nil
	}
	if pub.TipoTasa == "" {
		pub.TipoTasa = rt
	}

	res, err := r.Ingest(ctx, pub, opts)
	if err != nil {
		if models.IsKind(err, models.KindStructuralSource) {
			if lerr := r.recordFailure(ctx, rt, opts.TaskID, "publication rejected", err); lerr != nil {
				return nil, lerr
			}
			return &models.Result{Status: models.StatusError, TipoTasa: rt, Message: err.Error()}, nil
		}
		return nil, err
	}
	if _, err := r.ledger.Resolve(ctx, rt, ""); err != nil {
		return nil, err
	}
	return res, nil
}

// Ingest classifies a publication against today, backfills its plan, persists the
// publication on its effective date and registers continuity gaps.
func (r *CycleRunner) Ingest(ctx context.Context, pub *models.Publication, opts CycleOptions) (*models.Result, error) {
	if pub == nil {
		return nil, models.Structural("ingest", "", "nil publication")
	}
	rt := pub.TipoTasa
	if !rt.IsValid() {
		return nil, models.NewError(models.KindConfiguration, "ingest", rt, errUnknownRateType)
	}
	opts = opts.withDefaults("publication", rt)
	if _, ok := derivation.Compute(rt, pub.Basis); !ok {
		return nil, models.Structural("ingest", rt, "publication lacks %q", derivation.FormulaFor(rt).Component)
	}

	cfg, err := r.gaps.Config(ctx, rt)
	if err != nil {
		return nil, err
	}
	plan, err := Classify(pub, cfg, r.now())
	if err != nil {
		return nil, models.Structural("ingest", rt, "%v", err)
	}
	fo := FillOptions{LookbackDays: opts.LookbackDays, Origen: opts.Origen}

	var fills []*FillResult
	switch plan.Kind {
	case VigenciaFuture:
		if len(plan.Fechas) > 0 {
			fr, err := r.backfill.Fill(ctx, rt, plan.Fechas, nil, fo)
			if err != nil {
				return nil, err
			}
			fills = append(fills, fr)
		}
		fr, err := r.backfill.Fill(ctx, rt, []time.Time{plan.FechaVigencia}, pub, fo)
		if err != nil {
			return nil, err
		}
		fills = append(fills, fr)
	default:
		dates := append([]time.Time{plan.FechaVigencia}, plan.Fechas...)
		fr, err := r.backfill.Fill(ctx, rt, dates, pub, fo)
		if err != nil {
			return nil, err
		}
		fills = append(fills, fr)
	}

	registered, err := r.gaps.RegisterMissing(ctx, rt, plan.Continuidad)
	if err != nil {
		return nil, err
	}

	var escritas, omitidas []time.Time
	for _, fr := range fills {
		escritas = append(escritas, fr.Escritas...)
		omitidas = append(omitidas, fr.Omitidas...)
	}
	res := &models.Result{
		Status:   models.StatusSuccess,
		TipoTasa: rt,
		Message:  fmt.Sprintf("publication %s ingested (%s)", util.FormatDay(plan.FechaVigencia), plan.Clase),
		Details: map[string]interface{}{
			"clase":                 plan.Clase,
			"diferenciaDias":        plan.DiferenciaDias,
			"fechasPlan":            util.FormatDays(plan.Fechas),
			"escritas":              util.FormatDays(escritas),
			"omitidas":              util.FormatDays(omitidas),
			"continuidad":           util.FormatDays(plan.Continuidad),
			"continuidadRegistrada": registered,
		},
	}
	if len(omitidas) > 0 {
		res.Status = models.StatusWarning
	}
	r.log.Info("publication ingested",
		logger.String("tipo_tasa", string(rt)),
		logger.String("clase", plan.Clase),
		logger.Day("fecha_vigencia", plan.FechaVigencia),
		logger.Int("escritas", len(escritas)),
		logger.Int("omitidas", len(omitidas)),
	)
	return res, nil
}

// IngestSeries persists historical values of rt and reconciles its gaps.
func (r *CycleRunner) IngestSeries(ctx context.Context, rt models.RateType, entries []models.Entry, opts CycleOptions) (*models.Result, error) {
	opts = opts.withDefaults("series", rt)
	ur, err := r.upsert.Upsert(ctx, rt, entries, opts.Origen)
	if err != nil {
		return nil, err
	}
	dates := entryDates(normalizeEntries(entries))
	removed, err := r.gaps.Reconcile(ctx, rt, dates)
	if err != nil {
		return nil, err
	}
	return &models.Result{
		Status:   models.StatusSuccess,
		TipoTasa: rt,
		Message:  fmt.Sprintf("%d entries processed", len(dates)),
		Details: map[string]interface{}{
			"insertadas":    ur.Inserted,
			"actualizadas":  len(ur.FechasActualizadas),
			"reconciliadas": removed,
		},
	}, nil
}

// pendingRanges groups rt's missing dates and appends the tail after fechaUltima.
// A rate type without data starts from today minus lookback.
func (r *CycleRunner) pendingRanges(ctx context.Context, rt models.RateType, today time.Time, lookback int) ([]models.DateRange, error) {
	rep, err := r.gaps.Verify(ctx, rt, VerifyOptions{})
	if models.IsKind(err, models.KindNoData) {
		from := util.AddDays(today, -lookback)
		return []models.DateRange{{Desde: from, Hasta: today, Dias: lookback + 1}}, nil
	}
	if err != nil {
		return nil, err
	}

	missing := make([]time.Time, 0, len(rep.FechasFaltantes))
	for _, s := range rep.FechasFaltantes {
		if d, ok := util.ParseDay(s); ok {
			missing = append(missing, d)
		}
	}
	ranges := GroupDates(missing)
	if last, ok := util.ParseDay(rep.FechaUltima); ok && last.Before(today) {
		from := util.AddDays(last, 1)
		ranges = append(ranges, models.DateRange{Desde: from, Hasta: today, Dias: util.DaysBetween(from, today) + 1})
	}
	return ranges, nil
}

// carryForward backfills the dates of the fetched ranges the source returned nothing for.
// Dates after the last returned value are left for the next cycle.
func (r *CycleRunner) carryForward(ctx context.Context, rt models.RateType, fetched []models.DateRange, got []time.Time, opts CycleOptions) (*FillResult, error) {
	if len(got) == 0 {
		return nil, nil
	}
	last := got[len(got)-1]
	have := make(map[int64]struct{}, len(got))
	for _, d := range got {
		have[util.DayKey(d)] = struct{}{}
	}
	var holes []time.Time
	for _, d := range ExpandRanges(fetched) {
		if _, ok := have[util.DayKey(d)]; !ok && d.Before(last) {
			holes = append(holes, d)
		}
	}
	if len(holes) == 0 {
		return nil, nil
	}
	return r.backfill.Fill(ctx, rt, holes, nil, FillOptions{LookbackDays: opts.LookbackDays, Origen: opts.Origen})
}

// SetMonitored turns scheduled cycles of rt on or off.
func (r *CycleRunner) SetMonitored(ctx context.Context, rt models.RateType, activa bool) (*models.RateTypeConfig, error) {
	return r.gaps.SetMonitored(ctx, rt, activa)
}

// skipUnmonitored returns a warning result when rt's config has monitoring turned off.
func (r *CycleRunner) skipUnmonitored(ctx context.Context, rt models.RateType) (*models.Result, error) {
	ok, err := r.gaps.Monitored(ctx, rt)
	if err != nil || ok {
		return nil, err
	}
	r.log.Debug("cycle skipped, rate type not monitored", logger.String("tipo_tasa", string(rt)))
	return &models.Result{Status: models.StatusWarning, TipoTasa: rt, Message: "rate type not monitored"}, nil
}

func (r *CycleRunner) policyFor(rt models.RateType, op string, opts CycleOptions) retry.Policy {
	p := r.policy
	if opts.Policy != nil {
		p = *opts.Policy
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = models.IsRetryable
	}
	next := p.OnRetry
	maxRetries, shouldRetry := p.MaxRetries, p.ShouldRetry
	p.OnRetry = func(err error, attempt int) {
		retrying := attempt <= maxRetries && shouldRetry(err)
		if retrying {
			r.metrics.RecordRetry(rt, op)
		}
		r.log.Warn("source attempt failed",
			logger.String("tipo_tasa", string(rt)),
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.Bool("retrying", retrying),
			logger.Error(err),
		)
		if next != nil {
			next(err, attempt)
		}
	}
	return p
}

func (r *CycleRunner) recordFailure(ctx context.Context, rt models.RateType, taskID, mensaje string, err error) error {
	kind := models.KindOf(err)
	r.metrics.RecordError(kind.String())
	r.log.Error(mensaje, logger.String("tipo_tasa", string(rt)), logger.String("kind", kind.String()), logger.Error(err))
	if _, lerr := r.ledger.Record(ctx, rt, taskID, mensaje+": "+kind.String(), err.Error(), models.Code(err)); lerr != nil {
		return lerr
	}
	return nil
}
