package usecase

import (
	"context"
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/services/derivation"
	"TasaPull/pkg/logger"
	"TasaPull/pkg/util"
)

// DefaultLookbackDays bounds how far back Fill searches for a stored neighbor value.
const DefaultLookbackDays = 45

// FillOptions tunes a Fill run.
type FillOptions struct {
	// LookbackDays limits the neighbor search when no reference publication applies.
	// Zero means DefaultLookbackDays.
	LookbackDays int
	// Origen tags update events. Defaults to "backfill".
	Origen string
}

func (o FillOptions) withDefaults() FillOptions {
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.Origen == "" {
		o.Origen = "backfill"
	}
	return o
}

// FillResult summarizes a Fill run.
type FillResult struct {
	TipoTasa      models.RateType                         `json:"tipoTasa"`
	Escritas      []time.Time                             `json:"escritas"`
	Omitidas      []time.Time                             `json:"omitidas"`
	Reconstruidas int                                     `json:"reconstruidas"`
	PorTipo       map[models.RateType]models.UpsertResult `json:"porTipo"`
	Reconciliadas map[models.RateType]int                 `json:"reconciliadas"`
}

// BackfillEngine writes values for dates lacking data and keeps co-derived rate types
// consistent on every written date.
type BackfillEngine struct {
	obs     domrepo.ObservationStore
	upsert  *BulkUpsertTracker
	gaps    *GapTracker
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewBackfillEngine(obs domrepo.ObservationStore, upsert *BulkUpsertTracker, gaps *GapTracker, metrics domrepo.Metrics, log *logger.Logger) *BackfillEngine {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BackfillEngine{obs: obs, upsert: upsert, gaps: gaps, metrics: metrics, log: log}
}

// Fill computes rt and its co-derived rate types on each date. Basis values come from ref
// when it carries the component rt needs, otherwise from a publication reconstructed out of
// the stored prior values, each inverted through the formula of the rate type that stored
// it. Dates without a usable basis are skipped. Reconcile runs after all writes.
func (e *BackfillEngine) Fill(ctx context.Context, rt models.RateType, dates []time.Time, ref *models.Publication, opts FillOptions) (*FillResult, error) {
	if !rt.IsValid() {
		return nil, models.NewError(models.KindConfiguration, "fill", rt, errUnknownRateType)
	}
	opts = opts.withDefaults()
	family := derivation.Family(rt)
	res := &FillResult{
		TipoTasa:      rt,
		PorTipo:       make(map[models.RateType]models.UpsertResult),
		Reconciliadas: make(map[models.RateType]int),
	}

	if _, ok := derivation.Compute(rt, ref.GetBasis()); !ok {
		ref = nil
	}

	batch := make(map[models.RateType][]models.Entry, len(family))
	var (
		prevDay time.Time
		prevPub *models.Publication
	)
	for _, d := range uniqueDays(dates) {
		pub := ref
		if pub == nil {
			if !prevDay.IsZero() && util.DaysBetween(prevDay, d) == 1 && prevPub != nil {
				pub = prevPub
			} else {
				p, err := e.neighborBasis(ctx, rt, family, d, opts.LookbackDays)
				if err != nil {
					return res, err
				}
				pub = p
			}
		}

		values, err := derivation.DeriveAll(rt, pub)
		if err != nil {
			perr := models.NewError(models.KindPartialBackfill, "fill", rt,
				fmt.Errorf("no basis for %s within %d days: %w", util.FormatDay(d), opts.LookbackDays, err))
			e.log.Warn("backfill date skipped", logger.String("tipo_tasa", string(rt)), logger.Day("fecha", d), logger.Error(perr))
			e.metrics.RecordError(models.KindPartialBackfill.String())
			res.Omitidas = append(res.Omitidas, d)
			prevDay, prevPub = time.Time{}, nil
			continue
		}
		if pub.Reconstruida {
			res.Reconstruidas++
		}
		for _, t := range family {
			if v, ok := values[t]; ok {
				batch[t] = append(batch[t], models.Entry{Fecha: d, Valor: v})
			}
		}
		prevDay, prevPub = d, pub
	}

	written := make(map[models.RateType][]time.Time, len(family))
	for _, t := range family {
		entries := batch[t]
		if len(entries) == 0 {
			continue
		}
		ur, err := e.upsert.Upsert(ctx, t, entries, opts.Origen)
		if err != nil {
			return res, fmt.Errorf("fill %s: %w", t, err)
		}
		res.PorTipo[t] = ur
		written[t] = entryDates(entries)
	}
	res.Escritas = written[rt]

	for _, t := range family {
		if len(written[t]) == 0 {
			continue
		}
		n, err := e.gaps.Reconcile(ctx, t, written[t])
		if err != nil {
			return res, fmt.Errorf("fill reconcile %s: %w", t, err)
		}
		res.Reconciliadas[t] = n
	}

	e.log.Info("backfill done",
		logger.String("tipo_tasa", string(rt)),
		logger.Int("escritas", len(res.Escritas)),
		logger.Int("omitidas", len(res.Omitidas)),
	)
	return res, nil
}

// neighborBasis synthesizes a publication for d from stored values before d, within
// lookback. Each basis component comes from the latest stored value of a family member
// whose formula uses it. Returns nil when nothing is stored in the window.
func (e *BackfillEngine) neighborBasis(ctx context.Context, rt models.RateType, family []models.RateType, d time.Time, lookback int) (*models.Publication, error) {
	notBefore := util.AddDays(d, -lookback)
	found := make(map[models.RateType]models.Entry, len(family))
	var latest time.Time
	for _, t := range family {
		en, ok, err := e.obs.LastBefore(ctx, t, d, notBefore)
		if err != nil {
			return nil, models.Persistence("fill", t, err)
		}
		if !ok {
			continue
		}
		found[t] = en
		if en.Fecha.After(latest) {
			latest = en.Fecha
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &models.Publication{
		TipoTasa:      rt,
		FechaVigencia: latest,
		Basis:         derivation.ReconstructBasis(family, found),
		Fuente:        "backfill",
		Reconstruida:  true,
	}, nil
}

func uniqueDays(dates []time.Time) []time.Time {
	entries := make([]models.Entry, len(dates))
	for i, d := range dates {
		entries[i] = models.Entry{Fecha: d}
	}
	return entryDates(normalizeEntries(entries))
}
