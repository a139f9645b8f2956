package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	pkghttp "TasaPull/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func newSource(t *testing.T, h http.HandlerFunc) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	src, err := NewHTTPSource(pkghttp.NewClient(pkghttp.WithTimeout(time.Second)), nil, srv.URL+"/tasas", 1000, 10)
	require.NoError(t, err)
	return src
}

func TestFetchPublication(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tasaActivaBNA", r.URL.Query().Get("tipoTasa"))
		_, _ = w.Write([]byte(`{"fechaVigencia":"21/04/2025","basis":{"tna":"66,00","tem":5.5,"tea":"90"},"fuente":"bna"}`))
	})
	pub, err := src.FetchPublication(context.Background(), models.TasaActivaBNA)
	require.NoError(t, err)
	assert.Equal(t, d("2025-04-21"), pub.FechaVigencia)
	assert.Equal(t, map[string]float64{"tna": 66, "tem": 5.5, "tea": 90}, pub.Basis)
	assert.Equal(t, "bna", pub.Fuente)
}

func TestFetchRangeFiltersToRange(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-02", r.URL.Query().Get("desde"))
		assert.Equal(t, "2024-01-03", r.URL.Query().Get("hasta"))
		_, _ = w.Write([]byte(`{"entries":[{"fecha":"2024-01-01","valor":1},{"fecha":"2024-01-02","valor":"2,5"},{"fecha":"??","valor":9},{"fecha":"2024-01-03","valor":3}]}`))
	})
	got, err := src.FetchRange(context.Background(), models.ICL, models.DateRange{Desde: d("2024-01-02"), Hasta: d("2024-01-03"), Dias: 2})
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{Fecha: d("2024-01-02"), Valor: 2.5}, {Fecha: d("2024-01-03"), Valor: 3}}, got)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   models.ErrorKind
	}{
		{"server error", http.StatusBadGateway, "", models.KindTransientSource},
		{"throttled", http.StatusTooManyRequests, "", models.KindTransientSource},
		{"not found", http.StatusNotFound, "", models.KindStructuralSource},
		{"bad json", http.StatusOK, "<html>", models.KindStructuralSource},
		{"no vigencia", http.StatusOK, `{"basis":{"cer":1}}`, models.KindStructuralSource},
		{"no basis", http.StatusOK, `{"fechaVigencia":"2025-04-18"}`, models.KindStructuralSource},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := newSource(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(c.body))
			})
			_, err := src.FetchPublication(context.Background(), models.CER)
			require.Error(t, err)
			assert.Equal(t, c.kind, models.KindOf(err), err.Error())
		})
	}
}

func TestUnreachableHostIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	src, err := NewHTTPSource(pkghttp.NewClient(pkghttp.WithTimeout(time.Second)), nil, url, 1000, 1)
	require.NoError(t, err)
	_, err = src.FetchPublication(context.Background(), models.CER)
	assert.True(t, models.IsRetryable(err), "%v", err)
}

func TestNewHTTPSourceRejectsBadURL(t *testing.T) {
	_, err := NewHTTPSource(pkghttp.NewClient(), nil, "not a url", 1, 1)
	assert.Error(t, err)
}

func TestFactoryRejectsBadURL(t *testing.T) {
	f := NewFactory(pkghttp.NewClient(), nil, 1, 1)
	_, err := f.Range("not a url")
	assert.Error(t, err)

	src, err := f.Publication("https://collector.example/tasas")
	require.NoError(t, err)
	assert.Equal(t, "collector.example", src.(*HTTPSource).host)
}
