package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// GoogleConfig holds configuration for Google Cloud Speech-to-Text
type GoogleConfig struct {
	// CredentialsFile is optional; application default credentials are used otherwise
	CredentialsFile string
	LanguageCode    string
}

// GoogleSpeechToText implements FileTranscriber for Google Cloud
type GoogleSpeechToText struct {
	client       *speech.Client
	languageCode string
	logger       *zap.Logger
}

var _ repositories.FileTranscriber = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates the Speech client once for the life of the process
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	languageCode := config.LanguageCode
	if languageCode == "" {
		languageCode = "en-US"
	}

	return &GoogleSpeechToText{
		client:       client,
		languageCode: languageCode,
		logger:       logger,
	}, nil
}

// TranscribeFile implements repositories.FileTranscriber
func (g *GoogleSpeechToText) TranscribeFile(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error) {
	if len(file.Data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}

	config, err := g.recognitionConfig(file)
	if err != nil {
		return nil, err
	}

	op, err := g.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: config,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: file.Data},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	segments := segmentsFromResults(resp.GetResults())

	g.logger.Info("Transcribed uploaded file",
		zap.String("filename", file.Filename),
		zap.String("encoding", config.Encoding.String()),
		zap.Int("segments", len(segments)))

	return segments, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func (g *GoogleSpeechToText) recognitionConfig(file repositories.UploadedFile) (*speechpb.RecognitionConfig, error) {
	format, ok := lookupFormat(file.Filename, file.ContentType)
	if !ok || format.encoding == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		return nil, fmt.Errorf("unsupported audio format: %q (%s)", file.Filename, file.ContentType)
	}

	return &speechpb.RecognitionConfig{
		Encoding:                   format.encoding,
		SampleRateHertz:            format.sampleRate,
		LanguageCode:               g.languageCode,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
	}, nil
}

// segmentsFromResults turns each final result into one segment starting at
// its first word. Results without word offsets start where the previous
// result ended.
func segmentsFromResults(results []*speechpb.SpeechRecognitionResult) []entities.TranscriptSegment {
	segments := make([]entities.TranscriptSegment, 0, len(results))
	var previousEnd float64
	for _, result := range results {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		best := result.GetAlternatives()[0]
		text := strings.TrimSpace(best.GetTranscript())

		start := previousEnd
		if words := best.GetWords(); len(words) > 0 && words[0].GetStartTime() != nil {
			start = words[0].GetStartTime().AsDuration().Seconds()
		}
		if end := result.GetResultEndTime(); end != nil {
			previousEnd = end.AsDuration().Seconds()
		}

		if text == "" {
			continue
		}
		segments = append(segments, entities.TranscriptSegment{Text: text, Start: start})
	}
	return segments
}
