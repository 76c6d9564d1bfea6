package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// AskResult is the outcome of one question
type AskResult struct {
	SessionID            string                      `json:"session_id"`
	Answer               string                      `json:"answer"`
	SupportingTimestamps []float64                   `json:"supporting_timestamps"`
	Conversation         []entities.ConversationTurn `json:"conversation"`
}

// QueryService answers questions against a stored session
type QueryService struct {
	repo          repositories.SessionRepository
	answerer      repositories.AnsweringProvider
	ranker        Ranker
	answerTimeout time.Duration
	logger        *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(
	repo repositories.SessionRepository,
	answerer repositories.AnsweringProvider,
	ranker Ranker,
	answerTimeout time.Duration,
	logger *zap.Logger,
) *QueryService {
	if ranker == nil {
		ranker = NewLexicalRanker(DefaultContextUtterances)
	}
	if answerTimeout <= 0 {
		answerTimeout = 30 * time.Second
	}
	return &QueryService{
		repo:          repo,
		answerer:      answerer,
		ranker:        ranker,
		answerTimeout: answerTimeout,
		logger:        logger,
	}
}

// Ask answers question using the session's transcript and history, then
// records the exchange. The turn is only stored once an answer exists.
func (s *QueryService) Ask(ctx context.Context, sessionID, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if !entities.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", domain.ErrInvalidInput)
	}

	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rankedContext := s.ranker.Rank(question, session.TranscriptIndex)

	answer, err := s.answer(ctx, repositories.AnswerRequest{
		Question: question,
		Context:  rankedContext,
		History:  session.Conversation,
		Language: session.Language,
	})
	if err != nil {
		s.logger.Warn("Answering provider failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrAnsweringUnavailable, err)
	}

	turn := entities.ConversationTurn{
		Question:             question,
		Answer:               answer,
		SupportingTimestamps: supportingTimestamps(question, answer, rankedContext),
		CreatedAt:            time.Now().UTC(),
	}

	updated, err := s.repo.AppendTurn(ctx, sessionID, turn)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("Failed to record turn", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Turn appended",
		zap.String("session_id", sessionID),
		zap.Int("context_utterances", len(rankedContext)),
		zap.Int("turns", len(updated.Conversation)))

	return &AskResult{
		SessionID:            sessionID,
		Answer:               answer,
		SupportingTimestamps: turn.SupportingTimestamps,
		Conversation:         updated.Conversation,
	}, nil
}

// Session returns a live session, or an error wrapping domain.ErrNotFound
// or domain.ErrInvalidInput
func (s *QueryService) Session(ctx context.Context, sessionID string) (*entities.Session, error) {
	if !entities.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", domain.ErrInvalidInput)
	}
	return s.repo.GetByID(ctx, sessionID)
}

func (s *QueryService) answer(ctx context.Context, req repositories.AnswerRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.answerTimeout)
	defer cancel()

	answer, err := s.answerer.Answer(ctx, req)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("provider returned an empty answer")
	}
	return answer, nil
}
