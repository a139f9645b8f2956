package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, fn func(c echo.Context) error) (int, Envelope) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, fn(c))
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestFailUsesAppErrorStatus(t *testing.T) {
	code, env := write(t, func(c echo.Context) error {
		return Fail(c, Conflict("rate %s busy", "cer").WithParam("tipoTasa", "cer").WithError(errors.New("lease held")))
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, env.Status)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_CONFLICT", env.Errors[0].Code)
	assert.Equal(t, "rate cer busy", env.Errors[0].Message)
	assert.Equal(t, "cer", env.Errors[0].Params["tipoTasa"])
	assert.Nil(t, env.Data)
}

func TestFailHidesUnknownErrors(t *testing.T) {
	code, env := write(t, func(c echo.Context) error { return Fail(c, errors.New("dial tcp: refused")) })
	assert.Equal(t, http.StatusInternalServerError, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_INTERNAL", env.Errors[0].Code)
	assert.NotContains(t, env.Errors[0].Message, "refused")
}

func TestListWrapsPage(t *testing.T) {
	code, env := write(t, func(c echo.Context) error { return List(c, []string{"cer", "icl"}, 2) })
	assert.Equal(t, http.StatusOK, code)
	page := env.Data.(map[string]interface{})
	assert.EqualValues(t, 2, page["total"])
	assert.Len(t, page["rows"], 2)
}

func TestErrorfUnknownStatusCode(t *testing.T) {
	assert.Equal(t, "ERR_418", Errorf(http.StatusTeapot, "no").Code)
}
