package repositories

import (
	"context"

	"github.com/satriahrh/vidqa/domain/entities"
)

// RankedUtterance is a transcript entry selected as context for a question
type RankedUtterance struct {
	Text       string    `json:"text"`
	Timestamps []float64 `json:"timestamps"`
	Score      int       `json:"score"`
}

// AnswerRequest carries everything an answering provider needs
type AnswerRequest struct {
	Question string
	Context  []RankedUtterance
	History  []entities.ConversationTurn
	// Language is the transcript language, empty when unknown
	Language string
}

// AnsweringProvider abstracts any question-answering model
type AnsweringProvider interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
