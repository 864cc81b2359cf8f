// Package redistest provides an in-process redis.IdempotencyStore for tests.
package redistest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// Memory ignores TTLs. Err, when set, fails every call.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
	Err     error
}

var _ redis.IdempotencyStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: map[string]string{}}
}

func (m *Memory) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Claim(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if _, taken := m.entries[key]; taken {
		return false, nil
	}
	m.entries[key] = fmt.Sprint(value)
	return true, nil
}

func (m *Memory) Save(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries[key] = fmt.Sprint(value)
	return nil
}

func (m *Memory) Release(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Key(scope, id string) string {
	return redis.Key("idempotency", scope, id)
}

// Len reports how many keys are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
