package entities

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// TranscriptSegment is a single time-stamped utterance as produced by a
// transcript provider
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
}

// TranscriptIndex maps a unique utterance text to the ascending,
// duplicate-free start times (in seconds) at which it occurs
type TranscriptIndex map[string][]float64

// Utterance is one entry of a TranscriptIndex
type Utterance struct {
	Text       string    `json:"text"`
	Timestamps []float64 `json:"timestamps"`
}

// Normalize groups segments by byte-exact text and collects the sorted set of
// start times for each text. Input order does not matter.
func Normalize(segments []TranscriptSegment) TranscriptIndex {
	sets := make(map[string]map[float64]struct{}, len(segments))
	for _, seg := range segments {
		times, ok := sets[seg.Text]
		if !ok {
			times = make(map[float64]struct{})
			sets[seg.Text] = times
		}
		times[seg.Start] = struct{}{}
	}

	index := make(TranscriptIndex, len(sets))
	for text, times := range sets {
		starts := make([]float64, 0, len(times))
		for start := range times {
			starts = append(starts, start)
		}
		sort.Float64s(starts)
		index[text] = starts
	}
	return index
}

// NewTranscriptIndex validates provider output and normalizes it
func NewTranscriptIndex(segments []TranscriptSegment) (TranscriptIndex, error) {
	for i, seg := range segments {
		if math.IsNaN(seg.Start) || math.IsInf(seg.Start, 0) || seg.Start < 0 {
			return nil, fmt.Errorf("segment %d has invalid start time %v", i, seg.Start)
		}
	}
	return Normalize(segments), nil
}

// Utterances returns the entries ordered by first occurrence, then text
func (idx TranscriptIndex) Utterances() []Utterance {
	out := make([]Utterance, 0, len(idx))
	for text, times := range idx {
		out = append(out, Utterance{Text: text, Timestamps: slices.Clone(times)})
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := firstStart(out[i].Timestamps), firstStart(out[j].Timestamps)
		if fi != fj {
			return fi < fj
		}
		return out[i].Text < out[j].Text
	})
	return out
}

func firstStart(times []float64) float64 {
	if len(times) == 0 {
		return math.Inf(1)
	}
	return times[0]
}

// Timestamps merges the timestamps of the given utterances into one sorted,
// duplicate-free slice. Unknown texts are ignored.
func (idx TranscriptIndex) Timestamps(texts ...string) []float64 {
	seen := make(map[float64]struct{})
	out := make([]float64, 0)
	for _, text := range texts {
		for _, ts := range idx[text] {
			if _, ok := seen[ts]; ok {
				continue
			}
			seen[ts] = struct{}{}
			out = append(out, ts)
		}
	}
	sort.Float64s(out)
	return out
}

// Text joins every utterance in time order
func (idx TranscriptIndex) Text() string {
	var b strings.Builder
	for i, u := range idx.Utterances() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(u.Text)
	}
	return b.String()
}

// Clone returns a deep copy
func (idx TranscriptIndex) Clone() TranscriptIndex {
	if idx == nil {
		return nil
	}
	out := make(TranscriptIndex, len(idx))
	for text, times := range idx {
		out[text] = slices.Clone(times)
	}
	return out
}
