package usecase

import (
	"context"
	"errors"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/logger"
)

// ErrorLedger keeps the scraping errors of each rate type inside its config document.
type ErrorLedger struct {
	cfgs  domrepo.ConfigStore
	locks *RateLocks
	log   *logger.Logger
	now   func() time.Time
}

func NewErrorLedger(cfgs domrepo.ConfigStore, locks *RateLocks, log *logger.Logger) *ErrorLedger {
	if locks == nil {
		locks = NewRateLocks()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ErrorLedger{cfgs: cfgs, locks: locks, log: log, now: time.Now}
}

// Record appends an error for rt. An unresolved entry with the same task and message
// is refreshed and its attempt count incremented instead.
func (l *ErrorLedger) Record(ctx context.Context, rt models.RateType, taskID, mensaje, detalle, codigo string) (models.ScrapingError, error) {
	if !rt.IsValid() {
		return models.ScrapingError{}, models.NewError(models.KindConfiguration, "ledger_record", rt, errUnknownRateType)
	}
	unlock := l.locks.Lock(rt)
	defer unlock()

	cfg, err := l.get(ctx, rt)
	if err != nil {
		return models.ScrapingError{}, err
	}
	now := l.now().UTC()

	var entry *models.ScrapingError
	for i := range cfg.ErroresScraping {
		e := &cfg.ErroresScraping[i]
		if !e.Resuelto && e.TaskID == taskID && e.Mensaje == mensaje {
			entry = e
			break
		}
	}
	if entry != nil {
		entry.Intentos++
		entry.Fecha = now
		entry.DetalleError = detalle
		if codigo != "" {
			entry.Codigo = codigo
		}
	} else {
		cfg.ErroresScraping = append(cfg.ErroresScraping, models.ScrapingError{
			TaskID:       taskID,
			Mensaje:      mensaje,
			DetalleError: detalle,
			Codigo:       codigo,
			Intentos:     1,
			Fecha:        now,
		})
		entry = &cfg.ErroresScraping[len(cfg.ErroresScraping)-1]
	}
	out := *entry

	if err := l.cfgs.Save(ctx, cfg); err != nil {
		return models.ScrapingError{}, models.Persistence("ledger_record", rt, err)
	}
	l.log.Warn("scraping error recorded",
		logger.String("tipo_tasa", string(rt)),
		logger.String("task_id", taskID),
		logger.String("codigo", codigo),
		logger.Int("intentos", out.Intentos),
	)
	return out, nil
}

// Resolve marks rt's unresolved entries as resolved. An empty taskID resolves all of them.
// Returns the number of entries resolved.
func (l *ErrorLedger) Resolve(ctx context.Context, rt models.RateType, taskID string) (int, error) {
	if !rt.IsValid() {
		return 0, models.NewError(models.KindConfiguration, "ledger_resolve", rt, errUnknownRateType)
	}
	unlock := l.locks.Lock(rt)
	defer unlock()

	cfg, err := l.cfgs.Get(ctx, rt)
	if errors.Is(err, domrepo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, models.Persistence("ledger_resolve", rt, err)
	}

	n := 0
	for i := range cfg.ErroresScraping {
		e := &cfg.ErroresScraping[i]
		if e.Resuelto || (taskID != "" && e.TaskID != taskID) {
			continue
		}
		e.Resuelto = true
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := l.cfgs.Save(ctx, cfg); err != nil {
		return 0, models.Persistence("ledger_resolve", rt, err)
	}
	l.log.Info("scraping errors resolved", logger.String("tipo_tasa", string(rt)), logger.Int("count", n))
	return n, nil
}

// QueryUnresolved lists the rate types with at least one unresolved entry.
func (l *ErrorLedger) QueryUnresolved(ctx context.Context) ([]models.UnresolvedReport, error) {
	cfgs, err := l.cfgs.List(ctx)
	if err != nil {
		return nil, models.Persistence("ledger_query", "", err)
	}
	out := make([]models.UnresolvedReport, 0)
	for _, c := range cfgs {
		if open := c.UnresolvedErrors(); len(open) > 0 {
			out = append(out, models.UnresolvedReport{TipoTasa: c.TipoTasa, Errores: open})
		}
	}
	return out, nil
}

func (l *ErrorLedger) get(ctx context.Context, rt models.RateType) (*models.RateTypeConfig, error) {
	cfg, err := l.cfgs.Get(ctx, rt)
	if errors.Is(err, domrepo.ErrNotFound) {
		return &models.RateTypeConfig{TipoTasa: rt, Activa: true}, nil
	}
	if err != nil {
		return nil, models.Persistence("ledger_record", rt, err)
	}
	return cfg, nil
}
