package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// SessionRepository is an in-memory SessionRepository. All mutation happens
// under the write lock and every read returns a deep copy.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	ttl      time.Duration
}

// NewSessionRepository creates a new in-memory session repository
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entities.Session),
		ttl:      ttl,
	}
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return errors.New("session with this id already exists")
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists || session.IsExpired() {
		return nil, domain.ErrNotFound
	}
	return session.Clone(), nil
}

// AppendTurn implements repositories.SessionRepository
func (r *SessionRepository) AppendTurn(ctx context.Context, id string, turn entities.ConversationTurn) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists || session.IsExpired() {
		return nil, domain.ErrNotFound
	}
	turn.SupportingTimestamps = slices.Clone(turn.SupportingTimestamps)
	session.AppendTurn(turn, r.ttl)
	return session.Clone(), nil
}

// DeleteExpired implements repositories.SessionRepository
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, session := range r.sessions {
		if session.IsExpired() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions, expired or not
func (r *SessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close implements repositories.SessionRepository
func (r *SessionRepository) Close(ctx context.Context) error {
	return nil
}
