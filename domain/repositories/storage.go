package repositories

import (
	"context"

	"github.com/satriahrh/vidqa/domain/entities"
)

// SessionRepository is the only shared mutable state in the service. Every
// implementation must be safe for concurrent use, and AppendTurn must be
// atomic per session: concurrent appends are all preserved.
type SessionRepository interface {
	// Create stores a session built by entities.NewSession
	Create(ctx context.Context, session *entities.Session) error
	// GetByID returns domain.ErrNotFound for unknown or expired sessions
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	// AppendTurn appends a turn, extends the session expiry and returns the updated session
	AppendTurn(ctx context.Context, id string, turn entities.ConversationTurn) (*entities.Session, error)
	// DeleteExpired removes expired sessions and reports how many were removed
	DeleteExpired(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
