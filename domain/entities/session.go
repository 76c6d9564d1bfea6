package entities

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is used when NewSession is given a non-positive ttl
const DefaultSessionTTL = 24 * time.Hour

// SourceKind tells how the session's media was supplied
type SourceKind string

const (
	SourceKindRemote SourceKind = "remote"
	SourceKindUpload SourceKind = "upload"
)

// Source identifies the media a session was built from
type Source struct {
	Kind      SourceKind `json:"kind" bson:"kind"`
	Reference string     `json:"reference" bson:"reference"`
}

// ConversationTurn is one question/answer exchange. Turns are appended and
// never mutated.
type ConversationTurn struct {
	Question             string    `json:"question" bson:"question"`
	Answer               string    `json:"answer" bson:"answer"`
	SupportingTimestamps []float64 `json:"supporting_timestamps" bson:"supporting_timestamps"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
}

// Session links one ingested media asset's transcript to its Q&A history
type Session struct {
	ID              string             `json:"id" bson:"_id"`
	Source          Source             `json:"source" bson:"source"`
	Language        string             `json:"language,omitempty" bson:"language,omitempty"`
	TranscriptIndex TranscriptIndex    `json:"transcript" bson:"transcript"`
	Conversation    []ConversationTurn `json:"conversation" bson:"conversation"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt    time.Time          `json:"last_active_at" bson:"last_active_at"`
	ExpiresAt       time.Time          `json:"expires_at" bson:"expires_at"`
}

// NewSession allocates a fresh random identifier and an empty conversation
func NewSession(source Source, index TranscriptIndex, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if index == nil {
		index = TranscriptIndex{}
	}
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		Source:          source,
		TranscriptIndex: index,
		Conversation:    make([]ConversationTurn, 0),
		CreatedAt:       now,
		LastActiveAt:    now,
		ExpiresAt:       now.Add(ttl),
	}
}

// AppendTurn adds a turn and slides the expiry window forward
func (s *Session) AppendTurn(turn ConversationTurn, ttl time.Duration) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.Conversation = append(s.Conversation, turn)
	s.Touch(ttl)
}

// Touch updates the last active time and extends expiration
func (s *Session) Touch(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.LastActiveAt = time.Now().UTC()
	s.ExpiresAt = s.LastActiveAt.Add(ttl)
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Clone returns a deep copy so callers never share store-owned state
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.TranscriptIndex = s.TranscriptIndex.Clone()
	out.Conversation = make([]ConversationTurn, len(s.Conversation))
	for i, turn := range s.Conversation {
		turn.SupportingTimestamps = slices.Clone(turn.SupportingTimestamps)
		out.Conversation[i] = turn
	}
	return &out
}

// Validate validates the session data
func (s *Session) Validate() error {
	if _, err := uuid.Parse(s.ID); err != nil {
		return errors.New("session id must be a uuid")
	}
	if s.Source.Kind != SourceKindRemote && s.Source.Kind != SourceKindUpload {
		return errors.New("invalid session source kind")
	}
	if s.TranscriptIndex == nil {
		return errors.New("transcript index is required")
	}
	return nil
}

// ValidSessionID reports whether id is a well-formed session identifier
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
