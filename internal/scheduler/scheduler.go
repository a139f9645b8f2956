package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/usecase"
	"TasaPull/pkg/logger"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned for a job name that was never scheduled.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrDuplicateJob is returned when a job name is scheduled twice.
	ErrDuplicateJob = errors.New("scheduler: job already scheduled")
)

// JobFunc runs one cycle.
type JobFunc func(ctx context.Context) (*models.Result, error)

// Job is a named cycle bound to a cron expression.
type Job struct {
	Name     string
	TipoTasa models.RateType
	Kind     string
	Spec     string
	Run      JobFunc
}

// JobStatus is the List view of a job.
type JobStatus struct {
	Name        string          `json:"name"`
	TipoTasa    models.RateType `json:"tipoTasa"`
	Kind        string          `json:"kind"`
	Spec        string          `json:"cron"`
	Next        *time.Time      `json:"next,omitempty"`
	LastRun     *time.Time      `json:"lastRun,omitempty"`
	LastStatus  string          `json:"lastStatus,omitempty"`
	LastMessage string          `json:"lastMessage,omitempty"`
	Running     bool            `json:"running"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	running bool
	lastRun time.Time
	status  string
	message string
}

// Service owns the cron loop. Runs of one rate type are serialized by the guard,
// so a manual ExecuteNow and a scheduled tick never overlap.
type Service struct {
	cron    *cron.Cron
	guard   *usecase.RateGuard
	metrics domrepo.Metrics
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	jobs    map[string]*entry
	started bool
}

// New creates a stopped scheduler. timeout bounds each run; zero means no bound.
func New(loc *time.Location, guard *usecase.RateGuard, metrics domrepo.Metrics, log *logger.Logger, timeout time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{log}
	return &Service{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		guard:   guard,
		metrics: metrics,
		log:     log,
		timeout: timeout,
		now:     time.Now,
		jobs:    make(map[string]*entry),
	}
}

// Schedule registers job. It can be called before or after Start.
func (s *Service) Schedule(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Spec, func() { _, _ = s.run(context.Background(), e) })
	if err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	e.id = id
	s.jobs[job.Name] = e
	s.log.Info("job scheduled",
		logger.String("job", job.Name),
		logger.String("tipo_tasa", string(job.TipoTasa)),
		logger.String("cron", job.Spec),
	)
	return nil
}

// Start begins firing scheduled jobs. Calling it twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop stops firing jobs and waits for running ones until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Running reports whether the cron loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ExecuteNow runs the named job synchronously, outside its schedule.
func (s *Service) ExecuteNow(ctx context.Context, name string) (*models.Result, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// List returns every job ordered by name.
func (s *Service) List() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := JobStatus{
			Name:        e.job.Name,
			TipoTasa:    e.job.TipoTasa,
			Kind:        e.job.Kind,
			Spec:        e.job.Spec,
			LastStatus:  e.status,
			LastMessage: e.message,
			Running:     e.running,
		}
		if s.started {
			if next := s.cron.Entry(e.id).Next; !next.IsZero() {
				st.Next = &next
			}
		}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			st.LastRun = &last
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) run(ctx context.Context, e *entry) (*models.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := s.now()
	log := s.log.With(logger.String("job", e.job.Name), logger.String("tipo_tasa", string(e.job.TipoTasa)))

	var res *models.Result
	err := s.guard.Run(ctx, e.job.TipoTasa, func(ctx context.Context) error {
		s.setRunning(e, true)
		defer s.setRunning(e, false)
		var err error
		res, err = e.job.Run(ctx)
		return err
	})
	s.metrics.RecordLatency("job_"+e.job.Kind, time.Since(start).Seconds())

	switch {
	case errors.Is(err, usecase.ErrRateBusy):
		log.Info("job skipped, rate type busy")
		return nil, err
	case err != nil:
		s.metrics.RecordError("scheduler")
		s.finish(e, start, string(models.StatusError), err.Error())
		log.Error("job failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	status, msg := string(models.StatusSuccess), ""
	if res != nil {
		status, msg = string(res.Status), res.Message
	}
	s.finish(e, start, status, msg)
	log.Info("job finished",
		logger.String("status", status),
		logger.String("message", msg),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (s *Service) setRunning(e *entry, running bool) {
	s.mu.Lock()
	e.running = running
	s.mu.Unlock()
}

func (s *Service) finish(e *entry, at time.Time, status, msg string) {
	s.mu.Lock()
	e.lastRun, e.status, e.message = at, status, msg
	s.mu.Unlock()
}

// cronLogger adapts the project logger to cron.Logger.
type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
