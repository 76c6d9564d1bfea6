package repositories

import (
	"context"

	"github.com/satriahrh/vidqa/domain/entities"
)

// UploadedFile is a media file received from a client
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RemoteTranscriptProvider fetches the transcript of a remotely hosted video
type RemoteTranscriptProvider interface {
	// FetchTranscript fails on an invalid reference or unavailable captions
	FetchTranscript(ctx context.Context, reference string) ([]entities.TranscriptSegment, error)
}

// FileTranscriber turns uploaded media into a transcript
type FileTranscriber interface {
	// TranscribeFile fails on unsupported or corrupt media
	TranscribeFile(ctx context.Context, file UploadedFile) ([]entities.TranscriptSegment, error)
}

// LanguageDetector guesses the language of a transcript
type LanguageDetector interface {
	// Detect returns an ISO 639-1 code
	Detect(text string) (string, bool)
}
