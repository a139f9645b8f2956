package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/scheduler"
	"TasaPull/internal/usecase"
	xhttp "TasaPull/pkg/http"
	xlogger "TasaPull/pkg/logger"
	"TasaPull/pkg/util"

	"github.com/labstack/echo/v4"
)

// maxValuesSpan caps the date span of a values query.
const maxValuesSpan = 3660

// JobScheduler is the scheduler surface exposed to operators.
type JobScheduler interface {
	List() []scheduler.JobStatus
	ExecuteNow(ctx context.Context, name string) (*models.Result, error)
	Start()
	Stop(ctx context.Context) error
	Running() bool
}

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler serves the internal monitoring and operations endpoints.
type OpsHandler struct {
	logger  *xlogger.Logger
	runner  *usecase.CycleRunner
	ingest  *usecase.PushIngestor
	ledger  *usecase.ErrorLedger
	guard   *usecase.RateGuard
	configs domrepo.ConfigStore
	obs     domrepo.ObservationStore
	sched   JobScheduler
	checks  []HealthCheck
	now     func() time.Time
}

func NewOpsHandler(
	logger *xlogger.Logger,
	runner *usecase.CycleRunner,
	ingest *usecase.PushIngestor,
	ledger *usecase.ErrorLedger,
	guard *usecase.RateGuard,
	configs domrepo.ConfigStore,
	obs domrepo.ObservationStore,
	sched JobScheduler,
	checks []HealthCheck,
) *OpsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OpsHandler{
		logger:  logger,
		runner:  runner,
		ingest:  ingest,
		ledger:  ledger,
		guard:   guard,
		configs: configs,
		obs:     obs,
		sched:   sched,
		checks:  checks,
		now:     time.Now,
	}
}

var _ xhttp.Handler = (*OpsHandler)(nil)

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.GET("/configs", h.ListConfigs)
	g.GET("/configs/:tipoTasa", h.GetConfig)
	g.PUT("/configs/:tipoTasa/activa", h.SetMonitored)
	g.GET("/rates/:tipoTasa/values", h.Values)
	g.POST("/rates/:tipoTasa/verify", h.Verify)
	g.POST("/ingest", h.Ingest)
	g.GET("/errors", h.Unresolved)
	g.POST("/errors/:tipoTasa/resolve", h.Resolve)

	g.GET("/scheduler", h.SchedulerStatus)
	g.POST("/scheduler/start", h.StartScheduler)
	g.POST("/scheduler/stop", h.StopScheduler)
	g.GET("/jobs", h.ListJobs)
	g.POST("/jobs/:name/run", h.RunJob)
}

func (h *OpsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("check", chk.Name), xlogger.Error(err))
			results[chk.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[chk.Name] = "ok"
	}
	return xhttp.JSON(c, code, map[string]interface{}{"status": status, "checks": results})
}

type rateRequest struct {
	TipoTasa string `param:"tipoTasa" json:"tipoTasa" validate:"required"`
}

func (h *OpsHandler) ListConfigs(c echo.Context) error {
	cfgs, err := h.configs.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list configs", err)
	}
	return xhttp.List(c, cfgs, len(cfgs))
}

func (h *OpsHandler) GetConfig(c echo.Context) error {
	req := &rateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rt, err := models.ParseRateType(req.TipoTasa)
	if err != nil {
		return h.fail(c, "get config", err)
	}
	cfg, err := h.configs.Get(c.Request().Context(), rt)
	if err != nil {
		return h.fail(c, "get config", err)
	}
	return xhttp.OK(c, cfg)
}

type monitoredRequest struct {
	TipoTasa string `param:"tipoTasa" json:"tipoTasa" validate:"required"`
	Activa   *bool  `json:"activa" validate:"required"`
}

func (h *OpsHandler) SetMonitored(c echo.Context) error {
	req := &monitoredRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rt, err := models.ParseRateType(req.TipoTasa)
	if err != nil {
		return h.fail(c, "set monitored", err)
	}
	cfg, err := h.runner.SetMonitored(c.Request().Context(), rt, *req.Activa)
	if err != nil {
		return h.fail(c, "set monitored", err)
	}
	return xhttp.OK(c, cfg)
}

type valuesRequest struct {
	TipoTasa string `param:"tipoTasa" json:"tipoTasa" validate:"required"`
	Desde    string `query:"desde" json:"desde" validate:"required"`
	Hasta    string `query:"hasta" json:"hasta"`
}

type valueView struct {
	Fecha string  `json:"fecha"`
	Valor float64 `json:"valor"`
}

func (h *OpsHandler) Values(c echo.Context) error {
	req := &valuesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rt, err := models.ParseRateType(req.TipoTasa)
	if err != nil {
		return h.fail(c, "values", err)
	}
	desde, ok := util.ParseDay(req.Desde)
	if !ok {
		return xhttp.Fail(c, xhttp.BadRequest("bad desde %q", req.Desde))
	}
	hasta := util.StartOfDay(h.now())
	if req.Hasta != "" {
		if hasta, ok = util.ParseDay(req.Hasta); !ok {
			return xhttp.Fail(c, xhttp.BadRequest("bad hasta %q", req.Hasta))
		}
	}
	if span := util.DaysBetween(desde, hasta); span < 0 || span > maxValuesSpan {
		return xhttp.Fail(c, xhttp.BadRequest("desde must precede hasta by at most %d days", maxValuesSpan))
	}

	entries, err := h.obs.Values(c.Request().Context(), rt, desde, hasta)
	if err != nil {
		return h.fail(c, "values", err)
	}
	rows := make([]valueView, len(entries))
	for i, e := range entries {
		rows[i] = valueView{Fecha: util.FormatDay(e.Fecha), Valor: e.Valor}
	}
	return xhttp.List(c, rows, len(rows))
}

func (h *OpsHandler) Verify(c echo.Context) error {
	req := &rateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rt, err := models.ParseRateType(req.TipoTasa)
	if err != nil {
		return h.fail(c, "verify", err)
	}
	var res *models.Result
	err = h.guard.Run(c.Request().Context(), rt, func(ctx context.Context) error {
		var err error
		res, err = h.runner.Verify(ctx, rt)
		return err
	})
	if err != nil {
		return h.fail(c, "verify", err)
	}
	return xhttp.OK(c, res)
}

func (h *OpsHandler) Ingest(c echo.Context) error {
	req := &usecase.IngestMessage{}
	if err := c.Bind(req); err != nil {
		return xhttp.Fail(c, xhttp.BadRequest("decode body").WithError(err))
	}
	res, err := h.ingest.Apply(c.Request().Context(), *req, "api")
	if err != nil {
		return h.fail(c, "ingest", err)
	}
	return xhttp.OK(c, res)
}

func (h *OpsHandler) Unresolved(c echo.Context) error {
	reports, err := h.ledger.QueryUnresolved(c.Request().Context())
	if err != nil {
		return h.fail(c, "query unresolved", err)
	}
	return xhttp.List(c, reports, len(reports))
}

type resolveRequest struct {
	TipoTasa string `param:"tipoTasa" json:"tipoTasa" validate:"required"`
	TaskID   string `json:"taskId"`
}

func (h *OpsHandler) Resolve(c echo.Context) error {
	req := &resolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rt, err := models.ParseRateType(req.TipoTasa)
	if err != nil {
		return h.fail(c, "resolve", err)
	}
	n, err := h.ledger.Resolve(c.Request().Context(), rt, req.TaskID)
	if err != nil {
		return h.fail(c, "resolve", err)
	}
	return xhttp.OK(c, map[string]int{"resueltos": n})
}

func (h *OpsHandler) SchedulerStatus(c echo.Context) error {
	if h.sched == nil {
		return xhttp.Fail(c, xhttp.Unavailable("scheduler disabled"))
	}
	return xhttp.OK(c, map[string]bool{"running": h.sched.Running()})
}

func (h *OpsHandler) StartScheduler(c echo.Context) error {
	if h.sched == nil {
		return xhttp.Fail(c, xhttp.Unavailable("scheduler disabled"))
	}
	h.sched.Start()
	h.logger.Info("scheduler started via api")
	return xhttp.OK(c, map[string]bool{"running": true})
}

func (h *OpsHandler) StopScheduler(c echo.Context) error {
	if h.sched == nil {
		return xhttp.Fail(c, xhttp.Unavailable("scheduler disabled"))
	}
	if err := h.sched.Stop(c.Request().Context()); err != nil {
		return h.fail(c, "stop scheduler", err)
	}
	h.logger.Info("scheduler stopped via api")
	return xhttp.OK(c, map[string]bool{"running": false})
}

func (h *OpsHandler) ListJobs(c echo.Context) error {
	if h.sched == nil {
		return xhttp.Fail(c, xhttp.Unavailable("scheduler disabled"))
	}
	jobs := h.sched.List()
	return xhttp.List(c, jobs, len(jobs))
}

func (h *OpsHandler) RunJob(c echo.Context) error {
	if h.sched == nil {
		return xhttp.Fail(c, xhttp.Unavailable("scheduler disabled"))
	}
	res, err := h.sched.ExecuteNow(c.Request().Context(), c.Param("name"))
	if err != nil {
		return h.fail(c, "run job", err)
	}
	return xhttp.OK(c, res)
}

// fail maps engine errors to HTTP errors. Unexpected ones are logged and hidden.
func (h *OpsHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, usecase.ErrRateBusy):
		appErr = xhttp.Conflict("%v", err)
	case errors.Is(err, scheduler.ErrUnknownJob), errors.Is(err, domrepo.ErrNotFound):
		appErr = xhttp.NotFound("%v", err)
	default:
		switch models.KindOf(err) {
		case models.KindConfiguration, models.KindStructuralSource:
			appErr = xhttp.BadRequest("%v", err).WithParam("kind", models.KindOf(err).String())
		case models.KindNoData:
			appErr = xhttp.NotFound("%v", err)
		}
	}
	if appErr != nil {
		return xhttp.Fail(c, appErr)
	}
	h.logger.Error(op+" failed", xlogger.Error(err), xlogger.String("route", c.Path()))
	return xhttp.Fail(c, xhttp.Errorf(http.StatusInternalServerError, "%s failed", op).WithError(err))
}
