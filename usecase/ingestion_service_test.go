package usecase

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/adapters/memory"
	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

func newIngestion(repo repositories.SessionRepository, remote repositories.RemoteTranscriptProvider, files repositories.FileTranscriber) *IngestionService {
	return NewIngestionService(repo, remote, files, fakeDetector("en"), IngestionConfig{
		SessionTTL:        time.Hour,
		TranscriptTimeout: time.Second,
		MaxConcurrent:     2,
		DetectLanguage:    true,
	}, zap.NewNop())
}

func TestIngest_RemoteReference(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	var gotReference string
	remote := fakeRemote(func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
		gotReference = reference
		return helloSegments, nil
	})
	svc := newIngestion(repo, remote, nil)

	session, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "  https://youtu.be/dQw4w9WgXcQ  "})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if gotReference != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Expected trimmed reference, got %q", gotReference)
	}
	want := entities.TranscriptIndex{"hello world": {0, 5}, "goodbye": {7}}
	if !reflect.DeepEqual(session.TranscriptIndex, want) {
		t.Errorf("Expected index %v, got %v", want, session.TranscriptIndex)
	}
	if session.Source.Kind != entities.SourceKindRemote {
		t.Errorf("Expected remote source, got %s", session.Source.Kind)
	}
	if session.Language != "en" {
		t.Errorf("Expected detected language en, got %q", session.Language)
	}

	stored, err := repo.GetByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Session not stored: %v", err)
	}
	if len(stored.Conversation) != 0 {
		t.Error("Expected empty conversation")
	}
}

func TestIngest_Upload(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	var gotFile repositories.UploadedFile
	files := fakeFiles(func(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error) {
		gotFile = file
		return []entities.TranscriptSegment{{Text: "uploaded", Start: 1}}, nil
	})
	svc := newIngestion(repo, nil, files)

	session, err := svc.Ingest(context.Background(), IngestRequest{
		Upload: &repositories.UploadedFile{Filename: "talk.wav", ContentType: "audio/wav", Data: []byte("RIFF")},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if gotFile.Filename != "talk.wav" {
		t.Errorf("Expected file passed through, got %+v", gotFile)
	}
	if session.Source != (entities.Source{Kind: entities.SourceKindUpload, Reference: "talk.wav"}) {
		t.Errorf("Unexpected source %+v", session.Source)
	}
}

func TestIngest_InvalidInput(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	called := false
	remote := fakeRemote(func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
		called = true
		return nil, nil
	})
	svc := newIngestion(repo, remote, fakeFiles(func(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error) {
		called = true
		return nil, nil
	}))

	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"neither", IngestRequest{}},
		{"blank reference", IngestRequest{RemoteReference: "   "}},
		{"both", IngestRequest{RemoteReference: "x", Upload: &repositories.UploadedFile{Data: []byte("a")}}},
		{"empty upload", IngestRequest{Upload: &repositories.UploadedFile{Filename: "a.wav"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if called {
		t.Error("Expected no provider call for invalid input")
	}
	if repo.Count() != 0 {
		t.Errorf("Expected no sessions, got %d", repo.Count())
	}
}

func TestIngest_ProviderFailureCreatesNothing(t *testing.T) {
	tests := []struct {
		name   string
		remote fakeRemote
	}{
		{"provider error", func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
			return nil, errors.New("no captions")
		}},
		{"malformed segments", staticSegments(
			entities.TranscriptSegment{Text: "ok", Start: 1},
			entities.TranscriptSegment{Text: "bad", Start: math.NaN()},
		)},
		{"negative start", staticSegments(entities.TranscriptSegment{Text: "bad", Start: -1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewSessionRepository(time.Hour)
			svc := newIngestion(repo, tt.remote, nil)

			_, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "dQw4w9WgXcQ"})
			if !errors.Is(err, domain.ErrTranscriptUnavailable) {
				t.Errorf("Expected ErrTranscriptUnavailable, got %v", err)
			}
			if repo.Count() != 0 {
				t.Errorf("Expected no sessions, got %d", repo.Count())
			}
		})
	}
}

func TestIngest_UploadWithoutTranscriber(t *testing.T) {
	svc := newIngestion(memory.NewSessionRepository(time.Hour), nil, nil)

	_, err := svc.Ingest(context.Background(), IngestRequest{Upload: &repositories.UploadedFile{Data: []byte("a")}})
	if !errors.Is(err, domain.ErrTranscriptUnavailable) {
		t.Errorf("Expected ErrTranscriptUnavailable, got %v", err)
	}
}

func TestIngest_ProviderTimeout(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	remote := fakeRemote(func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := NewIngestionService(repo, remote, nil, nil, IngestionConfig{TranscriptTimeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "dQw4w9WgXcQ"})
	if !errors.Is(err, domain.ErrTranscriptUnavailable) {
		t.Errorf("Expected ErrTranscriptUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got %v", err)
	}
}

func TestIngest_ConcurrencyBounded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	remote := fakeRemote(func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
		started <- struct{}{}
		<-release
		return helloSegments, nil
	})
	svc := NewIngestionService(memory.NewSessionRepository(time.Hour), remote, nil, nil,
		IngestionConfig{MaxConcurrent: 1, TranscriptTimeout: time.Second}, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "first"})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Ingest(ctx, IngestRequest{RemoteReference: "second"})
	if !errors.Is(err, domain.ErrTranscriptUnavailable) {
		t.Errorf("Expected second ingest to give up waiting for a slot, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("First ingest failed: %v", err)
	}
}

func TestTranscribe_DoesNotCreateSession(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	svc := newIngestion(repo, staticSegments(helloSegments...), nil)

	index, err := svc.Transcribe(context.Background(), IngestRequest{RemoteReference: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !reflect.DeepEqual(index["hello world"], []float64{0, 5}) {
		t.Errorf("Unexpected index %v", index)
	}
	if repo.Count() != 0 {
		t.Errorf("Expected no sessions, got %d", repo.Count())
	}
}

func TestIngest_EmptyTranscript(t *testing.T) {
	repo := memory.NewSessionRepository(time.Hour)
	svc := newIngestion(repo, staticSegments(), nil)

	session, err := svc.Ingest(context.Background(), IngestRequest{RemoteReference: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(session.TranscriptIndex) != 0 {
		t.Errorf("Expected empty index, got %v", session.TranscriptIndex)
	}
}
