package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/service/ratelimit"
	pkghttp "TasaPull/pkg/http"
	"TasaPull/pkg/util"
)

// HTTPSource reads publications and historical series from a JSON collector endpoint.
//
//	GET {url}?tipoTasa=cer                                  -> {"fechaVigencia":"2025-04-18","basis":{"cer":"1,7"},"fuente":"bcra"}
//	GET {url}?tipoTasa=cer&desde=2025-04-01&hasta=2025-04-10 -> {"entries":[{"fecha":"2025-04-01","valor":1.69}]}
//
// Calls to one host share a token bucket.
type HTTPSource struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	url     string
	host    string
	rate    float64
	burst   float64
}

var (
	_ domrepo.PublicationSource = (*HTTPSource)(nil)
	_ domrepo.RangeSource       = (*HTTPSource)(nil)
)

// NewHTTPSource creates a source for endpoint. limiter may be shared between sources.
func NewHTTPSource(client *pkghttp.Client, limiter *ratelimit.Limiter, endpoint string, ratePerSec float64, burst int) (*HTTPSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("source url %q: invalid", endpoint)
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPSource{
		client:  client,
		limiter: limiter,
		url:     endpoint,
		host:    u.Host,
		rate:    ratePerSec,
		burst:   float64(burst),
	}, nil
}

type publicationBody struct {
	FechaVigencia string                      `json:"fechaVigencia"`
	Basis         map[string]models.RateValue `json:"basis"`
	Fuente        string                      `json:"fuente"`
}

type seriesBody struct {
	Entries []struct {
		Fecha string           `json:"fecha"`
		Valor models.RateValue `json:"valor"`
	} `json:"entries"`
}

func (s *HTTPSource) FetchPublication(ctx context.Context, rt models.RateType) (*models.Publication, error) {
	var body publicationBody
	if err := s.get(ctx, rt, "fetch_publication", map[string][]string{"tipoTasa": {string(rt)}}, &body); err != nil {
		return nil, err
	}
	vigencia, ok := util.ParseDay(body.FechaVigencia)
	if !ok {
		return nil, models.Structural("fetch_publication", rt, "missing or invalid fechaVigencia %q", body.FechaVigencia)
	}
	if len(body.Basis) == 0 {
		return nil, models.Structural("fetch_publication", rt, "publication without basis values")
	}
	basis := make(map[string]float64, len(body.Basis))
	for k, v := range body.Basis {
		basis[k] = float64(v)
	}
	fuente := body.Fuente
	if fuente == "" {
		fuente = s.host
	}
	return &models.Publication{TipoTasa: rt, FechaVigencia: vigencia, Basis: basis, Fuente: fuente}, nil
}

// FetchRange returns the entries inside r. Entries outside r and unparseable dates are dropped.
func (s *HTTPSource) FetchRange(ctx context.Context, rt models.RateType, r models.DateRange) ([]models.Entry, error) {
	q := map[string][]string{
		"tipoTasa": {string(rt)},
		"desde":    {util.FormatDay(r.Desde)},
		"hasta":    {util.FormatDay(r.Hasta)},
	}
	var body seriesBody
	if err := s.get(ctx, rt, "fetch_range", q, &body); err != nil {
		return nil, err
	}
	lo, hi := util.DayKey(r.Desde), util.DayKey(r.Hasta)
	out := make([]models.Entry, 0, len(body.Entries))
	for _, e := range body.Entries {
		d, ok := util.ParseDay(e.Fecha)
		if !ok {
			continue
		}
		if k := util.DayKey(d); k < lo || k > hi {
			continue
		}
		out = append(out, models.Entry{Fecha: d, Valor: float64(e.Valor)})
	}
	return out, nil
}

func (s *HTTPSource) get(ctx context.Context, rt models.RateType, op string, query map[string][]string, dest any) error {
	if err := s.limiter.Wait(ctx, s.host, s.burst, s.rate); err != nil {
		return models.Transient(op, rt, err)
	}
	err := s.client.GetJSON(ctx, s.url, query, dest)
	if err == nil {
		return nil
	}
	var se *pkghttp.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return models.Transient(op, rt, err)
		}
		return models.Structural(op, rt, "%v", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// network errors are transient; anything else means the payload changed shape
	if models.KindOf(err) == models.KindTransientSource {
		return models.Transient(op, rt, err)
	}
	return models.Structural(op, rt, "%v", err)
}
