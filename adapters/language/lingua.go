package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"

	"github.com/satriahrh/vidqa/domain/repositories"
)

// minConfidence below which a detection is reported as unknown
const minConfidence = 0.5

// Detector implements LanguageDetector with lingua
type Detector struct {
	detector lingua.LanguageDetector
}

var _ repositories.LanguageDetector = (*Detector)(nil)

// NewDetector builds a detector for the given languages, or for every
// language lingua supports when fewer than two are given
func NewDetector(languages ...lingua.Language) *Detector {
	builder := lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	if len(languages) >= 2 {
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(languages...)
	}
	return &Detector{detector: builder.Build()}
}

// Detect implements repositories.LanguageDetector
func (d *Detector) Detect(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	if d.detector.ComputeLanguageConfidence(text, language) < minConfidence {
		return "", false
	}
	return strings.ToLower(language.IsoCode639_1().String()), true
}
