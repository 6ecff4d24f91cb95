// Package lock provides the execution lease that guarantees at most one
// worker runs a subscription's cycle at a time. Leases carry a TTL so a
// crashed holder self-heals once the lease expires.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker grants and releases per-subscription execution leases.
// Acquire returns false (not an error) when another holder owns the
// lease; callers treat that as "skip this cycle". A successful acquire
// yields a token minted for that acquisition alone; Release must
// present it, so a cycle that outlived its TTL cannot free the lease a
// successor re-acquired in the meantime.
type Locker interface {
	Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, subscriptionID, token string) error
}

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is the single-process lease backend. The clock is
// injectable so expiry behavior is testable without sleeping.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	owner  string
	now    func() time.Time
}

// NewMemoryLocker creates an in-memory lease backend. owner prefixes
// the minted tokens for log readability; it carries no authority.
func NewMemoryLocker(owner string) *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]lease),
		owner:  owner,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *MemoryLocker) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryLocker) Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.leases[subscriptionID]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := m.owner + ":" + uuid.NewString()
	m.leases[subscriptionID] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryLocker) Release(ctx context.Context, subscriptionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Only the minting acquisition may release. An expired lease
	// re-acquired by a successor must survive the late release of the
	// original holder.
	if cur, ok := m.leases[subscriptionID]; ok && cur.token == token {
		delete(m.leases, subscriptionID)
	}
	return nil
}
