package usecase

import (
	"context"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

type fakeRemote func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error)

func (f fakeRemote) FetchTranscript(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
	return f(ctx, reference)
}

type fakeFiles func(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error)

func (f fakeFiles) TranscribeFile(ctx context.Context, file repositories.UploadedFile) ([]entities.TranscriptSegment, error) {
	return f(ctx, file)
}

type fakeAnswerer func(ctx context.Context, req repositories.AnswerRequest) (string, error)

func (f fakeAnswerer) Answer(ctx context.Context, req repositories.AnswerRequest) (string, error) {
	return f(ctx, req)
}

type fakeDetector string

func (f fakeDetector) Detect(text string) (string, bool) {
	return string(f), f != ""
}

func staticSegments(segments ...entities.TranscriptSegment) fakeRemote {
	return func(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
		return segments, nil
	}
}

func staticAnswer(answer string) fakeAnswerer {
	return func(ctx context.Context, req repositories.AnswerRequest) (string, error) {
		return answer, nil
	}
}

var helloSegments = []entities.TranscriptSegment{
	{Text: "hello world", Start: 0},
	{Text: "goodbye", Start: 7},
	{Text: "hello world", Start: 5},
}
