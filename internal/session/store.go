package session

import (
	"context"
	"sync"
)

// IdentityStore persists the authenticated user id across restarts. It is the
// only durable artifact of a session.
type IdentityStore interface {
	// Load reports the stored id, or ok=false when nothing is stored.
	Load(ctx context.Context) (id int64, ok bool, err error)
	Save(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu sync.Mutex
	id int64
	ok bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.ok, nil
}

func (m *MemoryStore) Save(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id, m.ok = id, true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id, m.ok = 0, false
	return nil
}
