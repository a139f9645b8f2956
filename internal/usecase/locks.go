package usecase

import (
	"sync"

	"TasaPull/internal/domain/models"
)

// RateLocks serializes read-modify-write cycles on a rate type's config document.
// The gap tracker and the error ledger share one instance.
type RateLocks struct {
	mu sync.Mutex
	m  map[models.RateType]*sync.Mutex
}

func NewRateLocks() *RateLocks {
	return &RateLocks{m: make(map[models.RateType]*sync.Mutex)}
}

// Lock acquires rt's mutex and returns its release func.
func (l *RateLocks) Lock(rt models.RateType) func() {
	l.mu.Lock()
	mu, ok := l.m[rt]
	if !ok {
		mu = &sync.Mutex{}
		l.m[rt] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}
