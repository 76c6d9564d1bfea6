package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

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
	created_at     INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
CREATE TABLE IF NOT EXISTS transcript_utterances (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	text       BLOB NOT NULL,
	timestamps TEXT NOT NULL,
	PRIMARY KEY (session_id, text)
);
CREATE TABLE IF NOT EXISTS conversation_turns (
	session_id            TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq                   INTEGER NOT NULL,
	question              TEXT NOT NULL,
	answer                TEXT NOT NULL,
	supporting_timestamps TEXT NOT NULL,
	created_at            INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SessionRepository implements SessionRepository on a local SQLite file. The
// pool is limited to one connection, so every transaction is serialized.
type SessionRepository struct {
	db     *sql.DB
	ttl    time.Duration
	logger *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// Open opens (or creates) the database at path and ensures the schema exists
func Open(ctx context.Context, path string, ttl time.Duration, logger *zap.Logger) (*SessionRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}

	logger.Info("Opened SQLite session store", zap.String("path", path))

	return &SessionRepository{db: db, ttl: ttl, logger: logger}, nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, source_kind, source_ref, language, created_at, last_active_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Source.Kind), session.Source.Reference, session.Language,
		session.CreatedAt.UnixNano(), session.LastActiveAt.UnixNano(), session.ExpiresAt.UnixNano()); err != nil {
		r.logger.Error("Failed to create session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("insert session: %w", err)
	}

	// Utterance text is stored as a BLOB so keys survive byte-exact.
	for text, timestamps := range session.TranscriptIndex {
		if timestamps == nil {
			timestamps = []float64{}
		}
		encoded, err := json.Marshal(timestamps)
		if err != nil {
			return fmt.Errorf("encode timestamps: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_utterances (session_id, text, timestamps) VALUES (?, ?, ?)`,
			session.ID, []byte(text), string(encoded)); err != nil {
			return fmt.Errorf("insert utterance: %w", err)
		}
	}
	return tx.Commit()
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	return load(ctx, tx, id, time.Now())
}

// AppendTurn implements repositories.SessionRepository
func (r *SessionRepository) AppendTurn(ctx context.Context, id string, turn entities.ConversationTurn) (*entities.Session, error) {
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	if turn.SupportingTimestamps == nil {
		turn.SupportingTimestamps = []float64{}
	}
	timestamps, err := json.Marshal(turn.SupportingTimestamps)
	if err != nil {
		return nil, fmt.Errorf("encode supporting timestamps: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ?, expires_at = ? WHERE id = ? AND expires_at > ?`,
		now.UnixNano(), now.Add(r.ttl).UnixNano(), id, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	} else if n == 0 {
		return nil, domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (session_id, seq, question, answer, supporting_timestamps, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM conversation_turns WHERE session_id = ?), ?, ?, ?, ?)`,
		id, id, turn.Question, turn.Answer, string(timestamps), turn.CreatedAt.UnixNano()); err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	session, err := load(ctx, tx, id, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to append turn to session", zap.Error(err), zap.String("session_id", id))
		return nil, fmt.Errorf("commit: %w", err)
	}
	return session, nil
}

// DeleteExpired implements repositories.SessionRepository
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UnixNano())
	if err != nil {
		r.logger.Error("Failed to delete expired sessions", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

// Close implements repositories.SessionRepository
func (r *SessionRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func load(ctx context.Context, tx *sql.Tx, id string, now time.Time) (*entities.Session, error) {
	var (
		session                            entities.Session
		kind                               string
		createdAt, lastActiveAt, expiresAt int64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, source_kind, source_ref, language, created_at, last_active_at, expires_at
		FROM sessions WHERE id = ? AND expires_at > ?`, id, now.UnixNano()).
		Scan(&session.ID, &kind, &session.Source.Reference, &session.Language,
			&createdAt, &lastActiveAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	session.Source.Kind = entities.SourceKind(kind)
	session.CreatedAt = fromUnixNano(createdAt)
	session.LastActiveAt = fromUnixNano(lastActiveAt)
	session.ExpiresAt = fromUnixNano(expiresAt)
	if session.TranscriptIndex, err = loadTranscript(ctx, tx, id); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT question, answer, supporting_timestamps, created_at
		FROM conversation_turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	session.Conversation = make([]entities.ConversationTurn, 0)
	for rows.Next() {
		var (
			turn       entities.ConversationTurn
			timestamps string
			created    int64
		)
		if err := rows.Scan(&turn.Question, &turn.Answer, &timestamps, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(timestamps), &turn.SupportingTimestamps); err != nil {
			return nil, fmt.Errorf("decode supporting timestamps: %w", err)
		}
		turn.CreatedAt = fromUnixNano(created)
		session.Conversation = append(session.Conversation, turn)
	}
	return &session, rows.Err()
}

func loadTranscript(ctx context.Context, tx *sql.Tx, id string) (entities.TranscriptIndex, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT text, timestamps FROM transcript_utterances WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	index := make(entities.TranscriptIndex)
	for rows.Next() {
		var (
			text       []byte
			timestamps string
		)
		if err := rows.Scan(&text, &timestamps); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		var ts []float64
		if err := json.Unmarshal([]byte(timestamps), &ts); err != nil {
			return nil, fmt.Errorf("decode timestamps: %w", err)
		}
		index[string(text)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return index, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
