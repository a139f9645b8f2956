package usecase

import (
	"context"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/logger"
	"TasaPull/pkg/util"

	"github.com/go-playground/validator/v10"
)

// Message kinds accepted from push collectors.
const (
	MessagePublication = "publication"
	MessageSeries      = "series"
)

// IngestMessage is the payload pushed by external collectors:
//
//	{"kind":"publication","tipoTasa":"tasaActivaBNA","fechaVigencia":"2025-04-21","basis":{"tna":"66,00","tem":5.5,"tea":90}}
//	{"kind":"series","tipoTasa":"cer","entries":[{"fecha":"2025-04-01","valor":"1,5432"}]}
type IngestMessage struct {
	Kind          string                      `json:"kind" validate:"required,oneof=publication series"`
	TipoTasa      string                      `json:"tipoTasa" validate:"required"`
	FechaVigencia string                      `json:"fechaVigencia" validate:"required_if=Kind publication"`
	Basis         map[string]models.RateValue `json:"basis" validate:"required_if=Kind publication"`
	Entries       []IngestMessageEntry        `json:"entries" validate:"required_if=Kind series,dive"`
	Fuente        string                      `json:"fuente"`
}

// IngestMessageEntry is one dated value of a series message.
type IngestMessageEntry struct {
	Fecha string           `json:"fecha" validate:"required"`
	Valor models.RateValue `json:"valor"`
}

// PushIngestor applies pushed messages under the rate guard. Kafka and the ops API share it.
type PushIngestor struct {
	runner   *CycleRunner
	guard    *RateGuard
	metrics  domrepo.Metrics
	log      *logger.Logger
	validate *validator.Validate
}

func NewPushIngestor(runner *CycleRunner, guard *RateGuard, metrics domrepo.Metrics, log *logger.Logger) *PushIngestor {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PushIngestor{
		runner:   runner,
		guard:    guard,
		metrics:  metrics,
		log:      log,
		validate: validator.New(),
	}
}

// Apply validates m and runs it through the cycle runner. Invalid messages are
// structural errors; unknown rate types are configuration errors.
func (p *PushIngestor) Apply(ctx context.Context, m IngestMessage, origen string) (*models.Result, error) {
	start := time.Now()
	defer func() { p.metrics.RecordLatency("push_ingest", time.Since(start).Seconds()) }()

	if err := p.validate.Struct(m); err != nil {
		p.metrics.RecordError("push_validate")
		return nil, models.Structural("push_ingest", models.RateType(m.TipoTasa), "validate: %v", err)
	}
	rt, err := models.ParseRateType(m.TipoTasa)
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "push_ingest", models.RateType(m.TipoTasa), err)
	}

	opts := CycleOptions{Origen: origen}
	var res *models.Result
	err = p.guard.Run(ctx, rt, func(ctx context.Context) error {
		var err error
		switch m.Kind {
		case MessagePublication:
			var pub *models.Publication
			if pub, err = m.publication(rt); err == nil {
				res, err = p.runner.Ingest(ctx, pub, opts)
			}
		default:
			var entries []models.Entry
			if entries, err = m.entries(rt); err == nil {
				res, err = p.runner.IngestSeries(ctx, rt, entries, opts)
			}
		}
		return err
	})
	if err != nil {
		p.metrics.RecordError(models.KindOf(err).String())
		return nil, err
	}
	return res, nil
}

func (m IngestMessage) publication(rt models.RateType) (*models.Publication, error) {
	vigencia, ok := util.ParseDay(m.FechaVigencia)
	if !ok {
		return nil, models.Structural("push_ingest", rt, "bad fechaVigencia %q", m.FechaVigencia)
	}
	basis := make(map[string]float64, len(m.Basis))
	for k, v := range m.Basis {
		basis[k] = float64(v)
	}
	return &models.Publication{TipoTasa: rt, FechaVigencia: vigencia, Basis: basis, Fuente: m.Fuente}, nil
}

func (m IngestMessage) entries(rt models.RateType) ([]models.Entry, error) {
	out := make([]models.Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		d, ok := util.ParseDay(e.Fecha)
		if !ok {
			return nil, models.Structural("push_ingest", rt, "bad fecha %q", e.Fecha)
		}
		out = append(out, models.Entry{Fecha: d, Valor: float64(e.Valor)})
	}
	return out, nil
}
