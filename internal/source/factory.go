package source

import (
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/service/ratelimit"
	pkghttp "TasaPull/pkg/http"
)

// Factory builds HTTP sources that share one client and one limiter.
type Factory struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	rate    float64
	burst   int
}

func NewFactory(client *pkghttp.Client, limiter *ratelimit.Limiter, ratePerSec float64, burst int) *Factory {
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &Factory{client: client, limiter: limiter, rate: ratePerSec, burst: burst}
}

func (f *Factory) Range(url string) (domrepo.RangeSource, error) {
	src, err := NewHTTPSource(f.client, f.limiter, url, f.rate, f.burst)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (f *Factory) Publication(url string) (domrepo.PublicationSource, error) {
	src, err := NewHTTPSource(f.client, f.limiter, url, f.rate, f.burst)
	if err != nil {
		return nil, err
	}
	return src, nil
}
