package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/usecase"
	"TasaPull/pkg/cache"
	"TasaPull/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := New(time.UTC, usecase.NewRateGuard(cache.NewMemoryLease(), time.Minute, nil), nil, nil, time.Second)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func okJob(name string, rt models.RateType) Job {
	return Job{
		Name: name, TipoTasa: rt, Kind: config.JobVerify, Spec: "0 6 * * *",
		Run: func(context.Context) (*models.Result, error) {
			return &models.Result{Status: models.StatusSuccess, TipoTasa: rt, Message: "ok"}, nil
		},
	}
}

func TestScheduleRejectsDuplicatesAndBadCron(t *testing.T) {
	s := newService(t)
	require.NoError(t, s.Schedule(okJob("cer-verify", models.CER)))
	assert.ErrorIs(t, s.Schedule(okJob("cer-verify", models.CER)), ErrDuplicateJob)

	bad := okJob("broken", models.ICL)
	bad.Spec = "every day"
	assert.Error(t, s.Schedule(bad))
	assert.Len(t, s.List(), 1)
}

func TestExecuteNowRecordsStatus(t *testing.T) {
	s := newService(t)
	require.NoError(t, s.Schedule(okJob("b-icl", models.ICL)))
	failing := okJob("a-cer", models.CER)
	failing.Run = func(context.Context) (*models.Result, error) { return nil, errors.New("store down") }
	require.NoError(t, s.Schedule(failing))

	res, err := s.ExecuteNow(context.Background(), "b-icl")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message)

	_, err = s.ExecuteNow(context.Background(), "a-cer")
	assert.EqualError(t, err, "store down")

	_, err = s.ExecuteNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a-cer", list[0].Name)
	assert.Equal(t, string(models.StatusError), list[0].LastStatus)
	assert.Equal(t, string(models.StatusSuccess), list[1].LastStatus)
	assert.NotNil(t, list[1].LastRun)
	assert.Nil(t, list[1].Next, "no next run while stopped")
}

func TestExecuteNowSkipsBusyRateType(t *testing.T) {
	lease := cache.NewMemoryLease()
	guard := usecase.NewRateGuard(lease, time.Minute, nil)
	s := New(time.UTC, guard, nil, nil, 0)
	require.NoError(t, s.Schedule(okJob("cer", models.CER)))

	err := guard.Run(context.Background(), models.CER, func(ctx context.Context) error {
		_, err := s.ExecuteNow(ctx, "cer")
		return err
	})
	assert.ErrorIs(t, err, usecase.ErrRateBusy)
	assert.Empty(t, s.List()[0].LastStatus, "skipped runs leave no status")
}

func TestStartStop(t *testing.T) {
	s := newService(t)
	require.NoError(t, s.Schedule(okJob("cer", models.CER)))
	s.Start()
	s.Start()
	assert.True(t, s.Running())
	require.NotNil(t, s.List()[0].Next)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())
	require.NoError(t, s.Stop(context.Background()))
}

type fakeRunner struct{ calls []string }

func (f *fakeRunner) Verify(_ context.Context, rt models.RateType) (*models.Result, error) {
	f.calls = append(f.calls, "verify:"+string(rt))
	return &models.Result{Status: models.StatusSuccess}, nil
}

func (f *fakeRunner) RunRange(_ context.Context, rt models.RateType, _ domrepo.RangeSource, opts usecase.CycleOptions) (*models.Result, error) {
	f.calls = append(f.calls, "range:"+string(rt)+":"+opts.TaskID)
	return &models.Result{Status: models.StatusSuccess}, nil
}

func (f *fakeRunner) RunPublication(_ context.Context, rt models.RateType, _ domrepo.PublicationSource, _ usecase.CycleOptions) (*models.Result, error) {
	f.calls = append(f.calls, "publication:"+string(rt))
	return &models.Result{Status: models.StatusSuccess}, nil
}

type fakeSources struct{}

func (fakeSources) Range(string) (domrepo.RangeSource, error)             { return nil, nil }
func (fakeSources) Publication(string) (domrepo.PublicationSource, error) { return nil, nil }

func TestJobsFromConfig(t *testing.T) {
	runner := &fakeRunner{}
	jobs, err := JobsFromConfig([]config.Job{
		{Name: "cer", TipoTasa: "cer", Cron: "0 6 * * *", Kind: config.JobRange},
		{Name: "bna", TipoTasa: "tasaActivaBNA", Cron: "0 7 * * *", Kind: config.JobPublication},
		{Name: "icl", TipoTasa: "icl", Cron: "0 8 * * *", Kind: config.JobVerify},
		{Name: "off", TipoTasa: "icl", Cron: "0 8 * * *", Kind: config.JobVerify, Disabled: true},
	}, runner, fakeSources{}, 30)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for _, j := range jobs {
		_, err := j.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"range:cer:range:cer", "publication:tasaActivaBNA", "verify:icl"}, runner.calls)

	_, err = JobsFromConfig([]config.Job{{Name: "x", TipoTasa: "libor", Cron: "* * * * *", Kind: config.JobVerify}}, runner, fakeSources{}, 30)
	assert.True(t, models.IsKind(err, models.KindConfiguration))
}
