package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	access   map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string][]byte{},
		access:   map[string]time.Time{},
		now:      time.Now,
	}
}

// Get returns a copy of the stored session, so callers must Save changes
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save stores s and stamps its last access time
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	s.LastAccess = m.now()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = data
	m.access[s.ID] = s.LastAccess
	return nil
}

// Delete forgets a session
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.access, id)
	return nil
}

// Sweep implements Store
func (m *MemoryStore) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := m.now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, last := range m.access {
		if last.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.access, id)
			removed++
		}
	}
	return removed, nil
}
