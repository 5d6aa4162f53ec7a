package credential

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps credentials in process memory. Secrets are held in
// clear text; it backs development runs without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[uuid.UUID]Credential)}
}

func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[userID]
	if !ok {
		return Credential{}, ErrNotConfigured
	}
	return c, nil
}

func (m *MemoryStore) Put(_ context.Context, c Credential) error {
	m.mu.Lock()
	m.creds[c.UserID] = c
	m.mu.Unlock()
	return nil
}
