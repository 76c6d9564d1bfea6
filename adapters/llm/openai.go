package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain/repositories"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI answering provider
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAIAnswerer implements AnsweringProvider with the chat completions API
type OpenAIAnswerer struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

var _ repositories.AnsweringProvider = (*OpenAIAnswerer)(nil)

// NewOpenAIAnswerer creates a new OpenAI answering provider
func NewOpenAIAnswerer(config OpenAIConfig, logger *zap.Logger) (*OpenAIAnswerer, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &OpenAIAnswerer{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// Answer implements repositories.AnsweringProvider
func (o *OpenAIAnswerer) Answer(ctx context.Context, req repositories.AnswerRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    openAIMessages(req),
		Temperature: o.temperature,
	})
	if err != nil {
		o.logger.Error("Failed to generate answer", zap.Error(err))
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai returned an empty answer")
	}

	o.logger.Info("Answer generated",
		zap.String("model", o.model),
		zap.String("question", preview(req.Question)),
		zap.String("answer_preview", preview(text)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return text, nil
}

func openAIMessages(req repositories.AnswerRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2*len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemInstruction(req.Language),
	})
	for _, turn := range req.History {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Answer})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: questionPrompt(req),
	})
}
