package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

// DefaultContextUtterances is the ranker cap when none is configured
const DefaultContextUtterances = 8

// Ranker selects the transcript entries handed to the answering provider
type Ranker interface {
	Rank(question string, index entities.TranscriptIndex) []repositories.RankedUtterance
}

// LexicalRanker scores utterances by how many distinct question words they share
type LexicalRanker struct {
	limit int
}

// NewLexicalRanker returns a ranker that keeps at most limit utterances
func NewLexicalRanker(limit int) *LexicalRanker {
	if limit <= 0 {
		limit = DefaultContextUtterances
	}
	return &LexicalRanker{limit: limit}
}

// Rank implements Ranker. When no utterance shares a word with the question
// the earliest utterances are returned instead.
func (r *LexicalRanker) Rank(question string, index entities.TranscriptIndex) []repositories.RankedUtterance {
	utterances := index.Utterances()
	terms := tokenSet(question)

	ranked := make([]repositories.RankedUtterance, 0, len(utterances))
	for _, u := range utterances {
		score := 0
		for token := range tokenSet(u.Text) {
			if _, ok := terms[token]; ok {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, repositories.RankedUtterance{Text: u.Text, Timestamps: u.Timestamps, Score: score})
		}
	}

	if len(ranked) == 0 {
		for _, u := range utterances {
			if len(ranked) == r.limit {
				break
			}
			ranked = append(ranked, repositories.RankedUtterance{Text: u.Text, Timestamps: u.Timestamps})
		}
		return ranked
	}

	// utterances are already in time order, so a stable sort keeps ties chronological
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > r.limit {
		ranked = ranked[:r.limit]
	}
	return ranked
}

// supportingTimestamps returns the timestamps of the context entries that
// share a word with the answer or question, or of every entry when none do
func supportingTimestamps(question, answer string, context []repositories.RankedUtterance) []float64 {
	terms := tokenSet(question)
	for token := range tokenSet(answer) {
		terms[token] = struct{}{}
	}

	var matched []repositories.RankedUtterance
	for _, u := range context {
		for token := range tokenSet(u.Text) {
			if _, ok := terms[token]; ok {
				matched = append(matched, u)
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = context
	}

	index := make(entities.TranscriptIndex, len(matched))
	texts := make([]string, 0, len(matched))
	for _, u := range matched {
		index[u.Text] = u.Timestamps
		texts = append(texts, u.Text)
	}
	return index.Timestamps(texts...)
}

// tokenSet lower-cases s and splits it on anything that is not a letter or
// digit, dropping stop words
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
		a about above after again all am an and any are as at be because been
		before being below between both but by can did do does doing down during
		each few for from further had has have having he her here hers him his
		how i if in into is it its itself just me more most my no nor not now of
		off on once only or other our ours out over own same she should so some
		such than that the their theirs them then there these they this those
		through to too under until up very was we were what when where which
		while who whom why will with would you your yours`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
