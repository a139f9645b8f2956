package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	"TasaPull/pkg/cache"
	"TasaPull/pkg/logger"
)

// ErrRateBusy is returned when another worker is running a cycle for the same rate type.
var ErrRateBusy = errors.New("rate type busy")

// RateGuard serializes cycles of one rate type across processes with an expiring lease.
// Different rate types never block each other.
type RateGuard struct {
	lease cache.Lease
	ttl   time.Duration
	log   *logger.Logger
}

// NewRateGuard creates a guard. A nil lease runs work unguarded.
func NewRateGuard(lease cache.Lease, ttl time.Duration, log *logger.Logger) *RateGuard {
	if log == nil {
		log = logger.Nop()
	}
	return &RateGuard{lease: lease, ttl: ttl, log: log}
}

// Run executes fn while holding rt's lease. It fails fast with ErrRateBusy.
func (g *RateGuard) Run(ctx context.Context, rt models.RateType, fn func(context.Context) error) error {
	if g == nil || g.lease == nil {
		return fn(ctx)
	}
	key := "rate:" + string(rt)
	token, err := g.lease.Acquire(ctx, key, g.ttl)
	if errors.Is(err, cache.ErrLeaseHeld) {
		return fmt.Errorf("%w: %s", ErrRateBusy, rt)
	}
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", rt, err)
	}
	defer func() {
		// released with a fresh context so a cancelled cycle still frees its lease
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.lease.Release(rctx, key, token); err != nil {
			g.log.Warn("lease release failed", logger.String("tipo_tasa", string(rt)), logger.Error(err))
		}
	}()
	return fn(ctx)
}
