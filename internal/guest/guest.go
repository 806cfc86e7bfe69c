// Package guest enforces the free-question allowance for unauthenticated
// learners.
package guest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// DefaultLimit is the number of questions a guest may answer before signing up.
const DefaultLimit = 5

// SessionPrefix marks session ids that have no durable server-side row.
const SessionPrefix = "guest_"

// IsGuestSession reports whether id follows the guest session convention.
func IsGuestSession(id string) bool {
	return strings.HasPrefix(id, SessionPrefix)
}

// ErrLimitReached is returned by Increment when the device is already at
// the limit.
var ErrLimitReached = errors.New("guest question limit reached")

// Counter tracks answered questions per device. Increment must be an atomic
// read-modify-write against the backing storage so concurrent tabs on the
// same device never lose an update, and it must refuse with
// ErrLimitReached rather than move the count past limit.
type Counter interface {
	Count(ctx context.Context, deviceID string) (int, error)
	Increment(ctx context.Context, deviceID string, limit int) (int, error)
}

// Policy is the system-wide ceiling shared by every device.
type Policy struct {
	counter Counter
	limit   int
}

// NewPolicy creates a Policy. A non-positive limit falls back to DefaultLimit.
func NewPolicy(counter Counter, limit int) *Policy {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Policy{counter: counter, limit: limit}
}

// Limit returns the configured ceiling.
func (p *Policy) Limit() int { return p.limit }

// ForDevice binds the policy to one device identity.
func (p *Policy) ForDevice(deviceID string) *Gate {
	return &Gate{policy: p, deviceID: deviceID}
}

// Gate is the policy as seen by one device.
type Gate struct {
	policy   *Policy
	deviceID string
}

// DeviceID returns the device this gate is bound to.
func (g *Gate) DeviceID() string { return g.deviceID }

// Limit returns the configured ceiling.
func (g *Gate) Limit() int { return g.policy.limit }

// Answered returns how many questions the device has answered.
func (g *Gate) Answered(ctx context.Context) (int, error) {
	return g.policy.counter.Count(ctx, g.deviceID)
}

// HasReachedLimit is true once the device has answered Limit questions.
func (g *Gate) HasReachedLimit(ctx context.Context) (bool, error) {
	n, err := g.policy.counter.Count(ctx, g.deviceID)
	if err != nil {
		return false, err
	}
	return n >= g.policy.limit, nil
}

// Increment records one more answered question and returns the new total.
// Two tabs racing at the last free question get one success and one
// ErrLimitReached.
func (g *Gate) Increment(ctx context.Context) (int, error) {
	return g.policy.counter.Increment(ctx, g.deviceID, g.policy.limit)
}

// MemoryCounter is an in-process Counter.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

func (m *MemoryCounter) Count(_ context.Context, deviceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[deviceID], nil
}

func (m *MemoryCounter) Increment(_ context.Context, deviceID string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && m.counts[deviceID] >= limit {
		return m.counts[deviceID], ErrLimitReached
	}
	m.counts[deviceID]++
	return m.counts[deviceID], nil
}
