package api

import (
	"time"

	"github.com/satriahrh/vidqa/domain/entities"
)

// IngestRequest is the JSON body of POST /upload and POST /transcript
type IngestRequest struct {
	RemoteReference string `json:"remote_reference"`
}

// UploadResponse represents the response payload of POST /upload
type UploadResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TranscriptResponse represents the response payload of POST /transcript
type TranscriptResponse struct {
	Transcript entities.TranscriptIndex `json:"transcript"`
}

// AskRequest represents the request payload of POST /ask
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// SessionResponse represents the response payload of GET /sessions/:id
type SessionResponse struct {
	SessionID    string                      `json:"session_id"`
	Source       entities.Source             `json:"source"`
	Language     string                      `json:"language,omitempty"`
	Transcript   entities.TranscriptIndex    `json:"transcript"`
	Conversation []entities.ConversationTurn `json:"conversation"`
	CreatedAt    time.Time                   `json:"created_at"`
	ExpiresAt    time.Time                   `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
