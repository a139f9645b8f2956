package cache

import (
	"context"
	"sync"
	"time"
)

type memoryHold struct {
	token    string
	expireAt time.Time
}

// IsExpired checks if the hold has expired.
func (h memoryHold) IsExpired(now time.Time) bool {
	return now.After(h.expireAt)
}

// MemoryLease implements Lease inside one process. Used when no Redis is configured.
type MemoryLease struct {
	mutex sync.Mutex
	held  map[string]memoryHold
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryLease creates an in-process lease.
func NewMemoryLease(opts ...LeaseOption) *MemoryLease {
	cfg := leaseConfig(opts)
	return &MemoryLease{held: make(map[string]memoryHold), ttl: cfg.ttl, now: time.Now}
}

func (m *MemoryLease) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if h, ok := m.held[key]; ok && !h.IsExpired(now) {
		return "", ErrLeaseHeld
	}
	token := newToken()
	m.held[key] = memoryHold{token: token, expireAt: now.Add(ttl)}
	return token, nil
}

func (m *MemoryLease) Release(_ context.Context, key, token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	h, ok := m.held[key]
	if !ok || h.token != token {
		return ErrLeaseLost
	}
	delete(m.held, key)
	return nil
}
