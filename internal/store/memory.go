package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"hokm-server/internal/engine"
)

// MemoryStore is an in-process Store used by tests and by single-node
// deployments that accept losing in-flight rooms on restart. One mutex
// guards both maps; the write volume never justifies anything finer.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]StoredState
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	session Session
	expires time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]StoredState),
		sessions: make(map[string]sessionEntry),
	}
}

func (m *MemoryStore) GetState(_ context.Context, roomCode string) (StoredState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[roomCode]
	if !ok {
		return StoredState{}, ErrNotFound
	}
	return StoredState{State: st.State.Clone(), Version: st.Version}, nil
}

func (m *MemoryStore) PutState(_ context.Context, roomCode string, state engine.GameState, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.rooms[roomCode]
	switch {
	case !exists && expectedVersion != 0:
		return 0, ErrConcurrentWrite
	case exists && current.Version != expectedVersion:
		return 0, ErrConcurrentWrite
	}

	newVersion := expectedVersion + 1
	m.rooms[roomCode] = StoredState{State: state.Clone(), Version: newVersion}
	return newVersion, nil
}

func (m *MemoryStore) GetSession(_ context.Context, playerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[playerID]
	if !ok || time.Now().After(entry.expires) {
		return Session{}, ErrNotFound
	}
	return entry.session, nil
}

func (m *MemoryStore) PutSession(_ context.Context, playerID string, session Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[playerID] = sessionEntry{session: session, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, playerID)
	return nil
}

func (m *MemoryStore) DeleteRoom(_ context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomCode)
	return nil
}

func (m *MemoryStore) IterActiveRooms(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (m *MemoryStore) Close() error { return nil }
