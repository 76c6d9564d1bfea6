package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// IngestRequest names the media to ingest. Exactly one field must be set.
type IngestRequest struct {
	RemoteReference string
	Upload          *repositories.UploadedFile
}

// IngestionConfig tunes the ingestion pipeline
type IngestionConfig struct {
	SessionTTL        time.Duration
	TranscriptTimeout time.Duration
	// MaxConcurrent bounds simultaneous provider calls across all requests
	MaxConcurrent  int64
	DetectLanguage bool
}

// IngestionService turns a media source into a stored session
type IngestionService struct {
	repo     repositories.SessionRepository
	remote   repositories.RemoteTranscriptProvider
	files    repositories.FileTranscriber
	detector repositories.LanguageDetector
	sem      *semaphore.Weighted
	config   IngestionConfig
	logger   *zap.Logger
}

// NewIngestionService creates a new ingestion service. files and detector may be nil.
func NewIngestionService(
	repo repositories.SessionRepository,
	remote repositories.RemoteTranscriptProvider,
	files repositories.FileTranscriber,
	detector repositories.LanguageDetector,
	config IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.TranscriptTimeout <= 0 {
		config.TranscriptTimeout = 2 * time.Minute
	}
	return &IngestionService{
		repo:     repo,
		remote:   remote,
		files:    files,
		detector: detector,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
		config:   config,
		logger:   logger,
	}
}

// Ingest obtains a transcript, normalizes it and stores it under a new
// session. Nothing is stored unless every step succeeds.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*entities.Session, error) {
	source, index, err := s.transcribe(ctx, req)
	if err != nil {
		return nil, err
	}

	session := entities.NewSession(source, index, s.config.SessionTTL)
	if s.config.DetectLanguage && s.detector != nil {
		if lang, ok := s.detector.Detect(index.Text()); ok {
			session.Language = lang
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("source", string(source.Kind)),
		zap.String("language", session.Language),
		zap.Int("utterances", len(index)))

	return session, nil
}

// Transcribe runs the ingestion pipeline without creating a session
func (s *IngestionService) Transcribe(ctx context.Context, req IngestRequest) (entities.TranscriptIndex, error) {
	_, index, err := s.transcribe(ctx, req)
	return index, err
}

func (s *IngestionService) transcribe(ctx context.Context, req IngestRequest) (entities.Source, entities.TranscriptIndex, error) {
	source, err := validateIngestRequest(&req)
	if err != nil {
		return source, nil, err
	}

	segments, err := s.fetch(ctx, req)
	if err != nil {
		s.logger.Warn("Transcript provider failed",
			zap.String("source", string(source.Kind)),
			zap.String("reference", source.Reference),
			zap.Error(err))
		return source, nil, fmt.Errorf("%w: %w", domain.ErrTranscriptUnavailable, err)
	}

	index, err := entities.NewTranscriptIndex(segments)
	if err != nil {
		s.logger.Warn("Provider returned malformed transcript", zap.Error(err))
		return source, nil, fmt.Errorf("%w: %w", domain.ErrTranscriptUnavailable, err)
	}
	return source, index, nil
}

func (s *IngestionService) fetch(ctx context.Context, req IngestRequest) ([]entities.TranscriptSegment, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for transcription slot: %w", err)
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, s.config.TranscriptTimeout)
	defer cancel()

	start := time.Now()
	var (
		segments []entities.TranscriptSegment
		err      error
		provider string
	)
	if req.Upload != nil {
		if s.files == nil {
			return nil, errors.New("file transcription is not configured")
		}
		provider = "file"
		segments, err = s.files.TranscribeFile(ctx, *req.Upload)
	} else {
		provider = "remote"
		segments, err = s.remote.FetchTranscript(ctx, req.RemoteReference)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transcript obtained",
		zap.String("provider", provider),
		zap.Int("segments", len(segments)),
		zap.Duration("duration", time.Since(start)))

	return segments, nil
}

func validateIngestRequest(req *IngestRequest) (entities.Source, error) {
	req.RemoteReference = strings.TrimSpace(req.RemoteReference)
	switch {
	case req.RemoteReference != "" && req.Upload != nil:
		return entities.Source{}, fmt.Errorf("%w: provide either a remote reference or a file, not both", domain.ErrInvalidInput)
	case req.RemoteReference != "":
		return entities.Source{Kind: entities.SourceKindRemote, Reference: req.RemoteReference}, nil
	case req.Upload != nil:
		if len(req.Upload.Data) == 0 {
			return entities.Source{}, fmt.Errorf("%w: uploaded file is empty", domain.ErrInvalidInput)
		}
		return entities.Source{Kind: entities.SourceKindUpload, Reference: req.Upload.Filename}, nil
	default:
		return entities.Source{}, fmt.Errorf("%w: a remote reference or a file is required", domain.ErrInvalidInput)
	}
}
