// Package session holds transient per-conversation dialogue state.
package session

import (
	"context"
	"sync"

	"tribebot-backend/internal/features/account/models"
)

// State is the dialogue position for one conversation.
type State string

const (
	StateAwaitingSecret    State = "awaiting_secret"
	StateAwaitingSurname   State = "awaiting_surname"
	StateAwaitingGivenName State = "awaiting_given_name"
	// StateRegistered is terminal and doubles as the steady-state marker
	// for identities that already have an account.
	StateRegistered State = "registered"
)

// Session accumulates dialogue fields for an in-flight conversation,
// keyed by the external identity.
type Session struct {
	ExternalID  int64       `json:"external_id"`
	State       State       `json:"state"`
	PendingRole models.Role `json:"pending_role,omitempty"`
	Surname     string      `json:"surname,omitempty"`
	Locale      string      `json:"locale,omitempty"`
}

// Store keeps in-flight sessions. Get returns (nil, nil) for an unknown
// identity. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, externalID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, externalID int64) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryStore returns a process-local session store. State is lost on
// restart, which matches the single-process deployment scope.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int64]*Session)}
}

func (m *memoryStore) Get(ctx context.Context, externalID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[externalID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ExternalID] = &copied
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, externalID)
	return nil
}
