package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/vidqa/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// GeminiConfig holds configuration for the Gemini answering provider
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	// BaseURL overrides the API endpoint
	BaseURL string
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return errors.New("Gemini API key is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

// GeminiAnswerer implements AnsweringProvider using Google's Gemini API
type GeminiAnswerer struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
}

var _ repositories.AnsweringProvider = (*GeminiAnswerer)(nil)

// NewGeminiAnswerer creates a new Gemini answering provider
func NewGeminiAnswerer(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiAnswerer, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}

	return &GeminiAnswerer{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

// Answer implements repositories.AnsweringProvider. Failures are returned to
// the caller as-is; there is no retry or canned fallback.
func (g *GeminiAnswerer) Answer(ctx context.Context, req repositories.AnswerRequest) (string, error) {
	contents := geminiContents(req)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction(req.Language), genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(g.maxOutputTokens),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Error("Failed to generate answer", zap.Error(err))
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var answer strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			answer.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(answer.String())
	if text == "" {
		return "", errors.New("gemini returned an empty answer")
	}

	g.logger.Info("Answer generated",
		zap.String("model", g.model),
		zap.String("question", preview(req.Question)),
		zap.String("answer_preview", preview(text)),
		zap.Int("history_length", len(req.History)))

	return text, nil
}

// geminiContents converts the conversation so far plus the new question into Gemini format
func geminiContents(req repositories.AnswerRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, 2*len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents,
			genai.NewContentFromText(turn.Question, genai.RoleUser),
			genai.NewContentFromText(turn.Answer, genai.RoleModel))
	}
	return append(contents, genai.NewContentFromText(questionPrompt(req), genai.RoleUser))
}
