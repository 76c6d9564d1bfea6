// Package repotest holds the behavioural checks every SessionRepository
// backend must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// NewSession builds a valid session for backend tests
func NewSession() *entities.Session {
	return entities.NewSession(
		entities.Source{Kind: entities.SourceKindRemote, Reference: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		entities.TranscriptIndex{"hello world": {0, 5}, "goodbye": {7.25}},
		time.Hour,
	)
}

// Run exercises repo against the SessionRepository contract. The repository
// must start empty.
func Run(t *testing.T, repo repositories.SessionRepository) {
	ctx := context.Background()

	t.Run("CreateAndGetSession", func(t *testing.T) {
		session := NewSession()
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}

		if retrieved.ID != session.ID {
			t.Errorf("Expected id %s, got %s", session.ID, retrieved.ID)
		}
		if !reflect.DeepEqual(retrieved.TranscriptIndex, session.TranscriptIndex) {
			t.Errorf("Expected transcript %v, got %v", session.TranscriptIndex, retrieved.TranscriptIndex)
		}
		if retrieved.Source != session.Source {
			t.Errorf("Expected source %v, got %v", session.Source, retrieved.Source)
		}
		if len(retrieved.Conversation) != 0 {
			t.Errorf("Expected empty conversation, got %d turns", len(retrieved.Conversation))
		}
	})

	t.Run("UnknownSessionNotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		_, err = repo.AppendTurn(ctx, uuid.NewString(), entities.ConversationTurn{Question: "q", Answer: "a"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on append, got %v", err)
		}
	})

	t.Run("AppendTurn", func(t *testing.T) {
		session := NewSession()
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		// Backends store times at millisecond precision or coarser.
		time.Sleep(5 * time.Millisecond)

		turn := entities.ConversationTurn{
			Question:             "what was said?",
			Answer:               "hello world",
			SupportingTimestamps: []float64{0, 5},
			CreatedAt:            time.Now().UTC(),
		}
		updated, err := repo.AppendTurn(ctx, session.ID, turn)
		if err != nil {
			t.Fatalf("Failed to append turn: %v", err)
		}

		if len(updated.Conversation) != 1 {
			t.Fatalf("Expected 1 turn, got %d", len(updated.Conversation))
		}
		got := updated.Conversation[0]
		if got.Question != turn.Question || got.Answer != turn.Answer {
			t.Errorf("Unexpected turn %+v", got)
		}
		if !reflect.DeepEqual(got.SupportingTimestamps, turn.SupportingTimestamps) {
			t.Errorf("Expected timestamps %v, got %v", turn.SupportingTimestamps, got.SupportingTimestamps)
		}
		if !updated.ExpiresAt.After(session.ExpiresAt) {
			t.Error("Expected append to extend expiry")
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(retrieved.Conversation) != 1 {
			t.Errorf("Expected 1 stored turn, got %d", len(retrieved.Conversation))
		}
	})

	t.Run("ConcurrentAppendsPreserved", func(t *testing.T) {
		session := NewSession()
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.AppendTurn(ctx, session.ID, entities.ConversationTurn{
					Question: fmt.Sprintf("q%d", i),
					Answer:   fmt.Sprintf("a%d", i),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Concurrent append failed: %v", err)
			}
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(retrieved.Conversation) != writers {
			t.Fatalf("Expected %d turns, got %d", writers, len(retrieved.Conversation))
		}
		seen := make(map[string]string)
		for _, turn := range retrieved.Conversation {
			seen[turn.Question] = turn.Answer
		}
		for i := 0; i < writers; i++ {
			if seen[fmt.Sprintf("q%d", i)] != fmt.Sprintf("a%d", i) {
				t.Errorf("Turn q%d missing or misattributed", i)
			}
		}
	})

	t.Run("ExpiredSessions", func(t *testing.T) {
		session := NewSession()
		session.ExpiresAt = time.Now().Add(-1 * time.Hour)
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create expired session: %v", err)
		}

		if _, err := repo.GetByID(ctx, session.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected expired session to be ErrNotFound, got %v", err)
		}
		if _, err := repo.AppendTurn(ctx, session.ID, entities.ConversationTurn{Question: "q"}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected append on expired session to be ErrNotFound, got %v", err)
		}

		removed, err := repo.DeleteExpired(ctx)
		if err != nil {
			t.Fatalf("Failed to delete expired sessions: %v", err)
		}
		if removed < 1 {
			t.Errorf("Expected at least 1 removed session, got %d", removed)
		}
	})
}

// ByteExactTranscript checks that utterance keys round-trip byte for byte,
// including text that is not valid UTF-8
func ByteExactTranscript(t *testing.T, repo repositories.SessionRepository) {
	ctx := context.Background()

	session := entities.NewSession(
		entities.Source{Kind: entities.SourceKindUpload, Reference: "talk.wav"},
		entities.TranscriptIndex{"\xff": {1}, "\xfe": {2}, "caf\u00e9": {3}},
		time.Hour,
	)
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	retrieved, err := repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if !reflect.DeepEqual(retrieved.TranscriptIndex, session.TranscriptIndex) {
		t.Errorf("Expected transcript %#v, got %#v", session.TranscriptIndex, retrieved.TranscriptIndex)
	}
}
