package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// WhisperConfig holds configuration for the Whisper transcriber
type WhisperConfig struct {
	APIKey string
	// BaseURL overrides the OpenAI endpoint, e.g. for a compatible gateway
	BaseURL string
	Model   string
}

// WhisperTranscriber implements FileTranscriber with the OpenAI audio API
type WhisperTranscriber struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.FileTranscriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a new Whisper transcriber
func NewWhisperTranscriber(config WhisperConfig, logger *zap.Logger) (*WhisperTranscriber, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger,
	}, nil
}

// TranscribeFile implements repositories.FileTranscriber
func (w *WhisperTranscriber) TranscribeFile(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error) {
	if len(file.Data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}

	filename := file.Filename
	if filename == "" {
		filename = "upload" + extensionFor(file.ContentType)
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:                  w.model,
		FilePath:               filename,
		Reader:                 bytes.NewReader(file.Data),
		Format:                 openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment},
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	segments := make([]entities.TranscriptSegment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, entities.TranscriptSegment{Text: text, Start: seg.Start})
	}

	// Some compatible servers omit segments and only return the text.
	if len(segments) == 0 {
		if text := strings.TrimSpace(resp.Text); text != "" {
			segments = append(segments, entities.TranscriptSegment{Text: text, Start: 0})
		}
	}

	w.logger.Info("Transcribed uploaded file",
		zap.String("filename", filename),
		zap.String("language", resp.Language),
		zap.Float64("duration", resp.Duration),
		zap.Int("segments", len(segments)))

	return segments, nil
}
