package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrTurnInFlight is returned when a turn is requested for a session that
// already has one in flight. Facts and stage mutation are not safe under
// interleaving, so the contract is at-most-one in-flight turn per session.
var ErrTurnInFlight = errors.New("turn already in flight for session")

// Store is the session state backend. Implementations must be safe for
// concurrent use across sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Context, error)
	Put(ctx context.Context, sess *Context) error
	Evict(ctx context.Context, id string) error
}

// MemoryStore is the in-memory Store used for live conversations.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Context
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Context)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Put(ctx context.Context, sess *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Evict(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// TurnLocks serializes turns within a session. A second concurrent turn for
// the same session is rejected rather than queued, so a slow collaborator
// call cannot build up a backlog behind a session lock.
type TurnLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTurnLocks() *TurnLocks {
	return &TurnLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire reserves the session for one turn. Returns ErrTurnInFlight if the
// session already has a turn in progress. The returned release function must
// be called when the turn completes.
func (t *TurnLocks) Acquire(id string) (release func(), err error) {
	t.mu.Lock()
	lock, ok := t.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[id] = lock
	}
	t.mu.Unlock()

	if !lock.TryLock() {
		return nil, ErrTurnInFlight
	}
	return lock.Unlock, nil
}

// Forget drops the lock entry for an evicted session.
func (t *TurnLocks) Forget(id string) {
	t.mu.Lock()
	delete(t.locks, id)
	t.mu.Unlock()
}
