package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrLeaseHeld is returned when another holder owns the lease.
	ErrLeaseHeld = errors.New("cache: lease held by another owner")
	// ErrLeaseLost is returned by Release when the lease expired or changed owner.
	ErrLeaseLost = errors.New("cache: lease not owned")
)

// Lease is an expiring mutual-exclusion token keyed by name.
type Lease interface {
	// Acquire takes the lease on key for ttl and returns the owner token.
	// It fails with ErrLeaseHeld while another owner holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Release frees the lease if token still owns it.
	Release(ctx context.Context, key, token string) error
}

func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().Format(time.RFC3339Nano)
	}
	return hex.EncodeToString(b[:])
}
