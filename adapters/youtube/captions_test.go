package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		want      string
		wantErr   bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"watch url with extra params", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", false},
		{"short url", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", false},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts url", "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"bare id", " dQw4w9WgXcQ ", "dQw4w9WgXcQ", false},
		{"not a video", "https://example.com/", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.reference)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReference) {
					t.Errorf("Expected ErrInvalidReference, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseTimedText(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0.5" dur="1.2">hello world</text>
<text start="2" dur="1">it&amp;#39;s
fine</text>
<text start="3" dur="1"></text>
<text start="4.25" dur="1">hello world</text>
</transcript>`

	segments, err := parseTimedText([]byte(body))
	if err != nil {
		t.Fatalf("parseTimedText failed: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d: %+v", len(segments), segments)
	}
	if segments[0].Text != "hello world" || segments[0].Start != 0.5 {
		t.Errorf("Unexpected first segment %+v", segments[0])
	}
	if segments[1].Text != "it's fine" {
		t.Errorf("Expected unescaped text, got %q", segments[1].Text)
	}
	if segments[2].Start != 4.25 {
		t.Errorf("Expected start 4.25, got %v", segments[2].Start)
	}
}

func TestParseTimedText_InvalidStart(t *testing.T) {
	_, err := parseTimedText([]byte(`<transcript><text start="soon">hi</text></transcript>`))
	if err == nil {
		t.Error("Expected error for non-numeric start")
	}
}

// fakeYouTube serves a player response listing the given tracks and a timed
// text document for each of them
func fakeYouTube(t *testing.T, tracks string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/youtubei/v1/player":
			body, _ := io.ReadAll(r.Body)
			if id := gjson.GetBytes(body, "videoId").String(); id != "dQw4w9WgXcQ" {
				t.Errorf("Unexpected video id %q", id)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s}}}`,
				strings.ReplaceAll(tracks, "BASE", srv.URL))
		case "/api/timedtext":
			if r.URL.Query().Get("fmt") != "" {
				t.Error("Expected fmt parameter to be stripped")
			}
			lang := r.URL.Query().Get("lang")
			fmt.Fprintf(w, `<transcript><text start="0" dur="1">%s one</text><text start="1.5" dur="1">%s two</text></transcript>`, lang, lang)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchTranscript(t *testing.T) {
	srv := fakeYouTube(t, `[
		{"baseUrl":"BASE/api/timedtext?v=dQw4w9WgXcQ&lang=de&fmt=srv3","languageCode":"de"},
		{"baseUrl":"BASE/api/timedtext?v=dQw4w9WgXcQ&lang=en-asr","languageCode":"en","kind":"asr"},
		{"baseUrl":"BASE/api/timedtext?v=dQw4w9WgXcQ&lang=en&fmt=srv3","languageCode":"en"}
	]`)

	client := NewClient(Options{BaseURL: srv.URL, Languages: []string{"en", "de"}}, zap.NewNop())
	segments, err := client.FetchTranscript(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchTranscript failed: %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "en one" {
		t.Errorf("Expected manual english track, got %q", segments[0].Text)
	}
	if segments[1].Start != 1.5 {
		t.Errorf("Expected start 1.5, got %v", segments[1].Start)
	}
}

func TestClient_FetchTranscript_FallsBackToGenerated(t *testing.T) {
	srv := fakeYouTube(t, `[
		{"baseUrl":"BASE/api/timedtext?v=dQw4w9WgXcQ&lang=en-asr","languageCode":"en","kind":"asr"}
	]`)

	client := NewClient(Options{BaseURL: srv.URL}, zap.NewNop())
	segments, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchTranscript failed: %v", err)
	}
	if segments[0].Text != "en-asr one" {
		t.Errorf("Expected generated track, got %q", segments[0].Text)
	}
}

func TestClient_FetchTranscript_NoMatchingLanguage(t *testing.T) {
	srv := fakeYouTube(t, `[
		{"baseUrl":"BASE/api/timedtext?v=dQw4w9WgXcQ&lang=fr","languageCode":"fr"}
	]`)

	client := NewClient(Options{BaseURL: srv.URL, Languages: []string{"en"}}, zap.NewNop())
	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, ErrNoCaptions) {
		t.Errorf("Expected ErrNoCaptions, got %v", err)
	}
}

func TestClient_FetchTranscript_NoTracks(t *testing.T) {
	srv := fakeYouTube(t, `[]`)

	client := NewClient(Options{BaseURL: srv.URL}, zap.NewNop())
	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, ErrNoCaptions) {
		t.Errorf("Expected ErrNoCaptions, got %v", err)
	}
}

func TestClient_FetchTranscript_Unplayable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL}, zap.NewNop())
	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	if err == nil || !strings.Contains(err.Error(), "Video unavailable") {
		t.Errorf("Expected unplayable error, got %v", err)
	}
}

func TestClient_FetchTranscript_InvalidReference(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:0"}, zap.NewNop())
	_, err := client.FetchTranscript(context.Background(), "not a video")
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference, got %v", err)
	}
}
