package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satriahrh/vidqa/domain/repositories"
)

const systemPrompt = `You answer questions about a single video using only the transcript excerpts you are given.
Each excerpt is prefixed with the times, in seconds, at which it is spoken.
If the excerpts do not contain the answer, say that the video does not cover it.
Keep answers short and quote the transcript where it helps.`

// systemInstruction returns the system prompt, asking for the transcript
// language when it is known
func systemInstruction(language string) string {
	if language == "" {
		return systemPrompt
	}
	return systemPrompt + "\nThe transcript language is " + language + "; answer in the language of the question."
}

// questionPrompt renders the ranked context and the question as the final user message
func questionPrompt(req repositories.AnswerRequest) string {
	var b strings.Builder
	b.WriteString("Transcript excerpts:\n")
	if len(req.Context) == 0 {
		b.WriteString("(none)\n")
	}
	for _, u := range req.Context {
		b.WriteByte('[')
		for i, ts := range u.Timestamps {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(ts, 'f', -1, 64))
			b.WriteByte('s')
		}
		b.WriteString("] ")
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.Question)
	return b.String()
}

// preview shortens s for log fields
func preview(s string) string {
	const max = 50
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}
