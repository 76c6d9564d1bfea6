package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	source_kind    TEXT NOT NULL,
	source_ref     TEXT NOT NULL,
	language       TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	last_active_at TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
CREATE TABLE IF NOT EXISTS transcript_utterances (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	text       BYTEA NOT NULL,
	timestamps JSONB NOT NULL,
	PRIMARY KEY (session_id, text)
);
CREATE TABLE IF NOT EXISTS conversation_turns (
	session_id            TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq                   INTEGER NOT NULL,
	question              TEXT NOT NULL,
	answer                TEXT NOT NULL,
	supporting_timestamps JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SessionRepository implements SessionRepository on PostgreSQL. Appends lock
// the session row, so concurrent appends on one session serialize.
type SessionRepository struct {
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository connects to databaseURL and ensures the schema exists
func NewSessionRepository(ctx context.Context, databaseURL string, ttl time.Duration, logger *zap.Logger) (*SessionRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	return &SessionRepository{pool: pool, ttl: ttl, logger: logger}, nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	// Utterance text is stored as bytes so keys survive byte-exact.
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO sessions (id, source_kind, source_ref, language, created_at, last_active_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, string(session.Source.Kind), session.Source.Reference, session.Language,
		session.CreatedAt, session.LastActiveAt, session.ExpiresAt)
	for text, timestamps := range session.TranscriptIndex {
		encoded, err := json.Marshal(nonNil(timestamps))
		if err != nil {
			return fmt.Errorf("encode timestamps: %w", err)
		}
		batch.Queue(`INSERT INTO transcript_utterances (session_id, text, timestamps) VALUES ($1, $2, $3)`,
			session.ID, []byte(text), encoded)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		r.logger.Error("Failed to create session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	return r.load(ctx, r.pool, id, false)
}

// AppendTurn implements repositories.SessionRepository
func (r *SessionRepository) AppendTurn(ctx context.Context, id string, turn entities.ConversationTurn) (*entities.Session, error) {
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	timestamps, err := json.Marshal(nonNil(turn.SupportingTimestamps))
	if err != nil {
		return nil, fmt.Errorf("encode supporting timestamps: %w", err)
	}

	var session *entities.Session
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock the session row for the rest of the transaction.
		var locked string
		err := tx.QueryRow(ctx,
			`SELECT id FROM sessions WHERE id = $1 AND expires_at > $2 FOR UPDATE`,
			id, now).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		var seq int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM conversation_turns WHERE session_id = $1`,
			id).Scan(&seq); err != nil {
			return fmt.Errorf("next turn seq: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_turns (session_id, seq, question, answer, supporting_timestamps, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, seq, turn.Question, turn.Answer, timestamps, turn.CreatedAt); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE sessions SET last_active_at = $2, expires_at = $3 WHERE id = $1`,
			id, now, now.Add(r.ttl)); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}

		session, err = r.load(ctx, tx, id, true)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Error("Failed to append turn to session", zap.Error(err), zap.String("session_id", id))
		}
		return nil, err
	}
	return session, nil
}

// DeleteExpired implements repositories.SessionRepository
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to delete expired sessions", zap.Error(err))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close implements repositories.SessionRepository
func (r *SessionRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *SessionRepository) load(ctx context.Context, q querier, id string, includeExpired bool) (*entities.Session, error) {
	var (
		session entities.Session
		kind    string
	)
	err := q.QueryRow(ctx, `
		SELECT id, source_kind, source_ref, language, created_at, last_active_at, expires_at
		FROM sessions WHERE id = $1`, id).
		Scan(&session.ID, &kind, &session.Source.Reference, &session.Language,
			&session.CreatedAt, &session.LastActiveAt, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if !includeExpired && session.IsExpired() {
		return nil, domain.ErrNotFound
	}
	session.Source.Kind = entities.SourceKind(kind)
	if session.TranscriptIndex, err = loadTranscript(ctx, q, id); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT question, answer, supporting_timestamps, created_at
		FROM conversation_turns WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	session.Conversation = make([]entities.ConversationTurn, 0)
	for rows.Next() {
		var (
			turn       entities.ConversationTurn
			timestamps []byte
		)
		if err := rows.Scan(&turn.Question, &turn.Answer, &timestamps, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal(timestamps, &turn.SupportingTimestamps); err != nil {
			return nil, fmt.Errorf("decode supporting timestamps: %w", err)
		}
		session.Conversation = append(session.Conversation, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return &session, nil
}

func loadTranscript(ctx context.Context, q querier, id string) (entities.TranscriptIndex, error) {
	rows, err := q.Query(ctx,
		`SELECT text, timestamps FROM transcript_utterances WHERE session_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	index := make(entities.TranscriptIndex)
	for rows.Next() {
		var text, timestamps []byte
		if err := rows.Scan(&text, &timestamps); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		var ts []float64
		if err := json.Unmarshal(timestamps, &ts); err != nil {
			return nil, fmt.Errorf("decode timestamps: %w", err)
		}
		index[string(text)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return index, nil
}

func nonNil(ts []float64) []float64 {
	if ts == nil {
		return []float64{}
	}
	return ts
}
