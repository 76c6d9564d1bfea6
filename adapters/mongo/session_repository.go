package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

const sessionsCollection = "sessions"

// utteranceDocument keeps utterance text out of BSON field names, which
// cannot safely hold arbitrary characters such as '.' or '$'.
type utteranceDocument struct {
	Text       string    `bson:"text"`
	Timestamps []float64 `bson:"timestamps"`
}

type sessionDocument struct {
	ID           string                      `bson:"_id"`
	Source       entities.Source             `bson:"source"`
	Language     string                      `bson:"language,omitempty"`
	Transcript   []utteranceDocument         `bson:"transcript"`
	Conversation []entities.ConversationTurn `bson:"conversation"`
	CreatedAt    time.Time                   `bson:"created_at"`
	LastActiveAt time.Time                   `bson:"last_active_at"`
	ExpiresAt    time.Time                   `bson:"expires_at"`
}

func toDocument(s *entities.Session) sessionDocument {
	utterances := s.TranscriptIndex.Utterances()
	transcript := make([]utteranceDocument, len(utterances))
	for i, u := range utterances {
		transcript[i] = utteranceDocument{Text: u.Text, Timestamps: u.Timestamps}
	}
	conversation := s.Conversation
	if conversation == nil {
		conversation = make([]entities.ConversationTurn, 0)
	}
	return sessionDocument{
		ID:           s.ID,
		Source:       s.Source,
		Language:     s.Language,
		Transcript:   transcript,
		Conversation: conversation,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (d sessionDocument) toEntity() *entities.Session {
	index := make(entities.TranscriptIndex, len(d.Transcript))
	for _, u := range d.Transcript {
		index[u.Text] = u.Timestamps
	}
	conversation := d.Conversation
	if conversation == nil {
		conversation = make([]entities.ConversationTurn, 0)
	}
	return &entities.Session{
		ID:              d.ID,
		Source:          d.Source,
		Language:        d.Language,
		TranscriptIndex: index,
		Conversation:    conversation,
		CreatedAt:       d.CreatedAt,
		LastActiveAt:    d.LastActiveAt,
		ExpiresAt:       d.ExpiresAt,
	}
}

// SessionRepository implements SessionRepository using MongoDB. One document
// holds one session; appends use $push, which is atomic per document.
type SessionRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new MongoDB session repository and ensures its indexes
func NewSessionRepository(ctx context.Context, db *mongo.Database, ttl time.Duration, logger *zap.Logger) (*SessionRepository, error) {
	collection := db.Collection(sessionsCollection)

	// TTL index for automatic cleanup of expired sessions
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}
	logger.Info("Session indexes created successfully")

	return &SessionRepository{
		collection: collection,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, toDocument(session)); err != nil {
		r.logger.Error("Failed to create session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	filter := bson.M{
		"_id":        id,
		"expires_at": bson.M{"$gt": time.Now()},
	}

	var doc sessionDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get session by ID", zap.Error(err), zap.String("session_id", id))
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return doc.toEntity(), nil
}

// AppendTurn implements repositories.SessionRepository
func (r *SessionRepository) AppendTurn(ctx context.Context, id string, turn entities.ConversationTurn) (*entities.Session, error) {
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	filter := bson.M{
		"_id":        id,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$push": bson.M{"conversation": turn},
		"$set": bson.M{
			"last_active_at": now,
			"expires_at":     now.Add(r.ttl),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc sessionDocument
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to append turn to session", zap.Error(err), zap.String("session_id", id))
		return nil, fmt.Errorf("failed to append turn to session %s: %w", id, err)
	}

	r.logger.Debug("Turn appended to session",
		zap.String("session_id", id),
		zap.Int("turns", len(doc.Conversation)))

	return doc.toEntity(), nil
}

// DeleteExpired implements repositories.SessionRepository. The TTL index
// normally gets there first; this catches whatever the TTL monitor has not
// reached yet.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	if err != nil {
		r.logger.Error("Failed to delete expired sessions", zap.Error(err))
		return 0, err
	}
	return result.DeletedCount, nil
}

// Close implements repositories.SessionRepository. The connection is owned
// by Client.
func (r *SessionRepository) Close(ctx context.Context) error {
	return nil
}
