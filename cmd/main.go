package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/adapters/language"
	"github.com/satriahrh/vidqa/adapters/llm"
	"github.com/satriahrh/vidqa/adapters/memory"
	"github.com/satriahrh/vidqa/adapters/mongo"
	"github.com/satriahrh/vidqa/adapters/postgres"
	"github.com/satriahrh/vidqa/adapters/sqlite"
	"github.com/satriahrh/vidqa/adapters/stt"
	"github.com/satriahrh/vidqa/adapters/youtube"
	"github.com/satriahrh/vidqa/domain/repositories"
	"github.com/satriahrh/vidqa/internal/api"
	"github.com/satriahrh/vidqa/internal/auth"
	"github.com/satriahrh/vidqa/internal/cleanup"
	"github.com/satriahrh/vidqa/internal/config"
	"github.com/satriahrh/vidqa/internal/mcptools"
	"github.com/satriahrh/vidqa/internal/websocket"
	"github.com/satriahrh/vidqa/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	// vidqa token <subject> prints a bearer token and exits.
	if len(os.Args) == 3 && os.Args[1] == "token" {
		if err := issueToken(os.Stdout, cfg, os.Args[2]); err != nil {
			zap.NewExample().Fatal("Failed to issue token", zap.Error(err))
		}
		return
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session store
	sessionRepo, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.String("store", cfg.SessionStore), zap.Error(err))
	}

	// Initialize adapters
	captions := youtube.NewClient(youtube.Options{Languages: cfg.YouTubeLanguages}, logger)

	files, closeFiles := newFileTranscriber(ctx, cfg, logger)

	answerer, err := newAnsweringProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize answering provider", zap.String("provider", cfg.AnsweringProvider), zap.Error(err))
	}

	var detector repositories.LanguageDetector
	if cfg.DetectLanguage {
		detector = language.NewDetector()
	}

	// Initialize usecase services
	ingestion := usecase.NewIngestionService(sessionRepo, captions, files, detector, usecase.IngestionConfig{
		SessionTTL:        cfg.SessionTTL,
		TranscriptTimeout: cfg.TranscriptTimeout,
		MaxConcurrent:     cfg.MaxConcurrentTranscriptions,
		DetectLanguage:    cfg.DetectLanguage,
	}, logger)
	queries := usecase.NewQueryService(sessionRepo, answerer, usecase.NewLexicalRanker(cfg.ContextUtterances), cfg.AnswerTimeout, logger)

	// Initialize WebSocket hub with the query service
	hub := websocket.NewHub(queries, logger)
	go hub.Run(ctx)

	sweeper := cleanup.NewSessionCleanupService(sessionRepo, cfg.CleanupInterval, logger)
	sweeper.Start()

	var authMiddleware echo.MiddlewareFunc
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenManager(cfg.JWTSecret, auth.DefaultTokenTTL)
		if err != nil {
			logger.Fatal("Failed to initialize auth", zap.Error(err))
		}
		authMiddleware = tokens.Middleware(logger)
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	// Leaves room for multipart framing; the upload handlers enforce the exact cap.
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", cfg.MaxUploadBytes>>10+1024)))

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Ingestion:      ingestion,
		Queries:        queries,
		Hub:            hub,
		MCP:            mcptools.NewHandler(mcptools.NewTools(ingestion, queries, logger)),
		Auth:           authMiddleware,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("session_store", cfg.SessionStore),
		zap.String("file_transcriber", cfg.FileTranscriber),
		zap.String("answering_provider", cfg.AnsweringProvider))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop()
	if closeFiles != nil {
		if err := closeFiles(); err != nil {
			logger.Error("Failed to close file transcriber", zap.Error(err))
		}
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error("Failed to close session store", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openSessionStore returns the configured repository and the function that
// releases it
func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SessionRepository, func(context.Context) error, error) {
	switch cfg.SessionStore {
	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		repo, err := mongo.NewSessionRepository(ctx, client.Database, cfg.SessionTTL, logger)
		if err != nil {
			client.Close(context.Background())
			return nil, nil, err
		}
		return repo, client.Close, nil

	case config.StorePostgres:
		repo, err := postgres.NewSessionRepository(ctx, cfg.PostgresURL, cfg.SessionTTL, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case config.StoreSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.SessionTTL, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	default:
		repo := memory.NewSessionRepository(cfg.SessionTTL)
		return repo, repo.Close, nil
	}
}

// newFileTranscriber returns nil when uploads cannot be served, which turns
// every upload into a TranscriptUnavailable error
func newFileTranscriber(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.FileTranscriber, func() error) {
	switch cfg.FileTranscriber {
	case config.TranscriberGoogle:
		google, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleConfig{
			CredentialsFile: cfg.GoogleCredentialsFile,
			LanguageCode:    cfg.SpeechLanguage,
		}, logger)
		if err != nil {
			logger.Warn("Google Speech-to-Text unavailable, uploads disabled", zap.Error(err))
			return nil, nil
		}
		return google, google.Close

	default:
		whisper, err := stt.NewWhisperTranscriber(stt.WhisperConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.WhisperModel,
		}, logger)
		if err != nil {
			logger.Warn("Whisper unavailable, uploads disabled", zap.Error(err))
			return nil, nil
		}
		return whisper, nil
	}
}

func newAnsweringProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.AnsweringProvider, error) {
	switch cfg.AnsweringProvider {
	case config.AnswererOpenAI:
		return llm.NewOpenAIAnswerer(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, logger)
	default:
		return llm.NewGeminiAnswerer(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
	}
}
