package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/adapters/memory"
	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

func ingestHello(t *testing.T, repo repositories.SessionRepository) *entities.Session {
	t.Helper()
	svc := newIngestion(repo, staticSegments(helloSegments...), nil)
	session, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return session
}

func TestAsk_EndToEnd(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	session := ingestHello(t, repo)

	var gotReq repositories.AnswerRequest
	answerer := fakeAnswerer(func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
		gotReq = req
		return "hello world", nil
	})
	svc := NewQueryService(repo, answerer, nil, time.Second, zap.NewNop())

	result, err := svc.Ask(context.Background(), session.ID, "  what was said?  ")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if result.SessionID != session.ID {
		t.Errorf("Expected session id %s, got %s", session.ID, result.SessionID)
	}
	if result.Answer != "hello world" {
		t.Errorf("Expected answer 'hello world', got %q", result.Answer)
	}
	if !reflect.DeepEqual(result.SupportingTimestamps, []float64{0, 5}) {
		t.Errorf("Expected timestamps [0 5], got %v", result.SupportingTimestamps)
	}
	if len(result.Conversation) != 1 || result.Conversation[0].Question != "what was said?" {
		t.Errorf("Unexpected conversation %+v", result.Conversation)
	}

	if gotReq.Question != "what was said?" {
		t.Errorf("Expected trimmed question, got %q", gotReq.Question)
	}
	if len(gotReq.Context) != 2 {
		t.Errorf("Expected fallback context of 2 utterances, got %d", len(gotReq.Context))
	}
	if gotReq.Language != "en" {
		t.Errorf("Expected session language passed on, got %q", gotReq.Language)
	}

	// the second question sees the first turn as history
	if _, err := svc.Ask(context.Background(), session.ID, "and then?"); err != nil {
		t.Fatalf("Second ask failed: %v", err)
	}
	if len(gotReq.History) != 1 {
		t.Errorf("Expected 1 history turn, got %d", len(gotReq.History))
	}
}

func TestAsk_InvalidInput(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	session := ingestHello(t, repo)
	called := false
	svc := NewQueryService(repo, fakeAnswerer(func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
		called = true
		return "x", nil
	}), nil, time.Second, zap.NewNop())

	tests := []struct {
		name      string
		sessionID string
		question  string
	}{
		{"empty question", session.ID, ""},
		{"blank question", session.ID, " \t\n"},
		{"malformed id", "not-a-uuid", "what?"},
		{"empty id", "", "what?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ask(context.Background(), tt.sessionID, tt.question)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if called {
		t.Error("Expected no provider call for invalid input")
	}
}

func TestAsk_UnknownSession(t *testing.T) {
	svc := NewQueryService(memory.NewSessionRepository(time.Hour), staticAnswer("x"), nil, time.Second, zap.NewNop())

	_, err := svc.Ask(context.Background(), uuid.NewString(), "what?")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAsk_ProviderFailureLeavesConversationUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		answerer fakeAnswerer
		timeout  time.Duration
	}{
		{"error", func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
			return "", errors.New("quota exceeded")
		}, time.Second},
		{"empty answer", staticAnswer("   "), time.Second},
		{"timeout", func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewSessionRepository(time.Hour)
			session := ingestHello(t, repo)
			svc := NewQueryService(repo, tt.answerer, nil, tt.timeout, zap.NewNop())

			_, err := svc.Ask(context.Background(), session.ID, "what was said?")
			if !errors.Is(err, domain.ErrAnsweringUnavailable) {
				t.Errorf("Expected ErrAnsweringUnavailable, got %v", err)
			}

			stored, err := repo.GetByID(context.Background(), session.ID)
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if len(stored.Conversation) != 0 {
				t.Errorf("Expected no turns, got %d", len(stored.Conversation))
			}
		})
	}
}

func TestAsk_ConcurrentQuestionsBothRecorded(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	session := ingestHello(t, repo)
	svc := NewQueryService(repo, fakeAnswerer(func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
		return "answer to " + req.Question, nil
	}), nil, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, q := range []string{"first?", "second?"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := svc.Ask(context.Background(), session.ID, q)
			errs <- err
		}(q)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent ask failed: %v", err)
		}
	}

	stored, err := repo.GetByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(stored.Conversation) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(stored.Conversation))
	}
	for _, turn := range stored.Conversation {
		if turn.Answer != "answer to "+turn.Question {
			t.Errorf("Turn answer does not match its question: %+v", turn)
		}
	}
}

func TestSession(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	session := ingestHello(t, repo)
	svc := NewQueryService(repo, staticAnswer("x"), nil, time.Second, zap.NewNop())

	got, err := svc.Session(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("Expected %s, got %s", session.ID, got.ID)
	}

	if _, err := svc.Session(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
