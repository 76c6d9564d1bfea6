package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/vidqa/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeQuestion MessageType = "question"
	MessageTypeAnswer   MessageType = "answer"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// QuestionMessage asks a question about the socket's session
type QuestionMessage struct {
	BaseMessage
	Question string `json:"question"`
}

// AnswerMessage carries the result of a question. It is sent to every
// client watching the session.
type AnswerMessage struct {
	BaseMessage
	SessionID            string                      `json:"session_id"`
	Question             string                      `json:"question"`
	Answer               string                      `json:"answer"`
	SupportingTimestamps []float64                   `json:"supporting_timestamps"`
	Conversation         []entities.ConversationTurn `json:"conversation"`
}

// PingMessage represents an application level ping
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeQuestion:
		var msg QuestionMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid question message: %w", err)
		}
		msg.Question = strings.TrimSpace(msg.Question)
		if msg.Question == "" {
			return nil, errors.New("question is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, errors.New("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(messageID, code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: now(), MessageID: messageID},
		Code:        code,
		Message:     message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(messageID, data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{Type: MessageTypePong, Timestamp: now(), MessageID: messageID},
		Data:        data,
	}
}

// CreateAnswerMessage creates an answer message for the turn just recorded
func CreateAnswerMessage(messageID, sessionID, question, answer string, timestamps []float64, conversation []entities.ConversationTurn) *AnswerMessage {
	return &AnswerMessage{
		BaseMessage:          BaseMessage{Type: MessageTypeAnswer, Timestamp: now(), MessageID: messageID},
		SessionID:            sessionID,
		Question:             question,
		Answer:               answer,
		SupportingTimestamps: timestamps,
		Conversation:         conversation,
	}
}
