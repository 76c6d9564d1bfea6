package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid", GeminiConfig{APIKey: "k"}, false},
		{"missing key", GeminiConfig{}, true},
		{"temperature too high", GeminiConfig{APIKey: "k", Temperature: 3}, true},
		{"negative tokens", GeminiConfig{APIKey: "k", MaxOutputTokens: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeminiConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGeminiContents(t *testing.T) {
	contents := geminiContents(repositories.AnswerRequest{
		Question: "and then?",
		History: []entities.ConversationTurn{
			{Question: "what was said?", Answer: "hello"},
			{Question: "who said it?", Answer: "the host"},
		},
	})

	if len(contents) != 5 {
		t.Fatalf("Expected 5 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" || contents[1].Parts[0].Text != "hello" {
		t.Errorf("Unexpected history answer %+v", contents[1])
	}
	last := contents[4]
	if last.Role != "user" || !strings.Contains(last.Parts[0].Text, "Question: and then?") {
		t.Errorf("Unexpected final content %+v", last)
	}
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiAnswerer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	answerer, err := NewGeminiAnswerer(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create answerer: %v", err)
	}
	return answerer
}

func TestGeminiAnswerer_Answer(t *testing.T) {
	var body []byte
	var path string
	answerer := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"world"}]},"finishReason":"STOP"}]}`))
	})

	answer, err := answerer.Answer(context.Background(), repositories.AnswerRequest{
		Question: "what was said?",
		Context:  []repositories.RankedUtterance{{Text: "hello world", Timestamps: []float64{0, 5}}},
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer != "hello world" {
		t.Errorf("Expected joined parts, got %q", answer)
	}

	if !strings.HasSuffix(path, "/models/"+defaultGeminiModel+":generateContent") {
		t.Errorf("Unexpected request path %s", path)
	}
	if !strings.Contains(gjson.GetBytes(body, "systemInstruction.parts.0.text").String(), "transcript language is en") {
		t.Error("Expected system instruction with language hint")
	}
	if n := len(gjson.GetBytes(body, "contents").Array()); n != 1 {
		t.Errorf("Expected 1 content, got %d", n)
	}
}

func TestGeminiAnswerer_NoCandidates(t *testing.T) {
	answerer := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	})

	if _, err := answerer.Answer(context.Background(), repositories.AnswerRequest{Question: "q"}); err == nil {
		t.Error("Expected error without candidates")
	}
}

func TestGeminiAnswerer_ServerError(t *testing.T) {
	answerer := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
	})

	if _, err := answerer.Answer(context.Background(), repositories.AnswerRequest{Question: "q"}); err == nil {
		t.Error("Expected error from server")
	}
}
