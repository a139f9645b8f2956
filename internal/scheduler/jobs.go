package scheduler

import (
	"context"
	"fmt"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/usecase"
	"TasaPull/pkg/config"
)

// Sources resolves the upstream for a job URL.
type Sources interface {
	Range(url string) (domrepo.RangeSource, error)
	Publication(url string) (domrepo.PublicationSource, error)
}

// Runner is the subset of the cycle runner the scheduler drives.
type Runner interface {
	Verify(ctx context.Context, rt models.RateType) (*models.Result, error)
	RunRange(ctx context.Context, rt models.RateType, src domrepo.RangeSource, opts usecase.CycleOptions) (*models.Result, error)
	RunPublication(ctx context.Context, rt models.RateType, src domrepo.PublicationSource, opts usecase.CycleOptions) (*models.Result, error)
}

// JobsFromConfig builds jobs for every enabled config entry.
func JobsFromConfig(jobs []config.Job, runner Runner, sources Sources, lookbackDays int) ([]Job, error) {
	out := make([]Job, 0, len(jobs))
	for _, jc := range jobs {
		if jc.Disabled {
			continue
		}
		rt, err := models.ParseRateType(jc.TipoTasa)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}
		opts := usecase.CycleOptions{
			LookbackDays: lookbackDays,
			CarryForward: jc.CarryForward,
			TaskID:       jc.Kind + ":" + jc.Name,
			Origen:       "scheduler",
		}

		job := Job{Name: jc.Name, TipoTasa: rt, Kind: jc.Kind, Spec: jc.Cron}
		switch jc.Kind {
		case config.JobRange:
			src, err := sources.Range(jc.URL)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", jc.Name, err)
			}
			job.Run = func(ctx context.Context) (*models.Result, error) {
				return runner.RunRange(ctx, rt, src, opts)
			}
		case config.JobPublication:
			src, err := sources.Publication(jc.URL)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", jc.Name, err)
			}
			job.Run = func(ctx context.Context) (*models.Result, error) {
				return runner.RunPublication(ctx, rt, src, opts)
			}
		case config.JobVerify:
			job.Run = func(ctx context.Context) (*models.Result, error) {
				return runner.Verify(ctx, rt)
			}
		default:
			return nil, fmt.Errorf("job %s: unknown kind %q", jc.Name, jc.Kind)
		}
		out = append(out, job)
	}
	return out, nil
}
