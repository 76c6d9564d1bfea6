package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/domain/repositories"
)

const (
	defaultBaseURL = "https://www.youtube.com"

	// innertube client identity used for the player request
	clientName    = "ANDROID"
	clientVersion = "20.10.38"

	maxResponseBytes = 8 << 20
)

var (
	// ErrInvalidReference means no video ID could be extracted
	ErrInvalidReference = errors.New("invalid YouTube reference")
	// ErrNoCaptions means the video has no caption track in an accepted language
	ErrNoCaptions = errors.New("no captions available")

	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`),
		regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	}
	bareVideoID = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// ExtractVideoID returns the 11 character video ID of a YouTube URL or bare ID
func ExtractVideoID(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if bareVideoID.MatchString(reference) {
		return reference, nil
	}
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(reference); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
}

// Options configures a caption Client
type Options struct {
	// BaseURL defaults to https://www.youtube.com
	BaseURL string
	// Languages lists caption language codes in order of preference
	Languages  []string
	HTTPClient *http.Client
}

// Client fetches caption tracks through the innertube player API
type Client struct {
	baseURL    string
	languages  []string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.RemoteTranscriptProvider = (*Client)(nil)

// NewClient creates a new caption client
func NewClient(opts Options, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	languages := opts.Languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		languages:  languages,
		httpClient: httpClient,
		logger:     logger,
	}
}

// captionTrack is one entry of playerCaptionsTracklistRenderer.captionTracks
type captionTrack struct {
	BaseURL      string
	LanguageCode string
	Generated    bool
}

// FetchTranscript implements repositories.RemoteTranscriptProvider
func (c *Client) FetchTranscript(ctx context.Context, reference string) ([]entities.TranscriptSegment, error) {
	videoID, err := ExtractVideoID(reference)
	if err != nil {
		return nil, err
	}

	tracks, err := c.captionTracks(ctx, videoID)
	if err != nil {
		return nil, err
	}

	track, ok := c.pickTrack(tracks)
	if !ok {
		return nil, fmt.Errorf("%w: video %s has no track in %v", ErrNoCaptions, videoID, c.languages)
	}

	segments, err := c.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fetched YouTube captions",
		zap.String("video_id", videoID),
		zap.String("language", track.LanguageCode),
		zap.Bool("generated", track.Generated),
		zap.Int("segments", len(segments)))

	return segments, nil
}

func (c *Client) captionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	payload, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    clientName,
				"clientVersion": clientVersion,
				"hl":            c.languages[0],
			},
		},
		"videoId": videoID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/youtubei/v1/player?prettyPrint=false", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("player request failed: %w", err)
	}

	player := gjson.ParseBytes(body)
	if status := player.Get("playabilityStatus.status").String(); status != "" && status != "OK" {
		reason := player.Get("playabilityStatus.reason").String()
		return nil, fmt.Errorf("video %s is not playable: %s %s", videoID, status, reason)
	}

	var tracks []captionTrack
	player.Get("captions.playerCaptionsTracklistRenderer.captionTracks").ForEach(func(_, track gjson.Result) bool {
		tracks = append(tracks, captionTrack{
			BaseURL:      track.Get("baseUrl").String(),
			LanguageCode: track.Get("languageCode").String(),
			Generated:    track.Get("kind").String() == "asr",
		})
		return true
	})
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: video %s has no caption tracks", ErrNoCaptions, videoID)
	}
	return tracks, nil
}

// pickTrack walks the preferred languages in order, taking a manual track
// before an auto-generated one for each language
func (c *Client) pickTrack(tracks []captionTrack) (captionTrack, bool) {
	for _, lang := range c.languages {
		for _, generated := range []bool{false, true} {
			for _, track := range tracks {
				if track.LanguageCode == lang && track.Generated == generated && track.BaseURL != "" {
					return track, true
				}
			}
		}
	}
	return captionTrack{}, false
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func (c *Client) fetchTimedText(ctx context.Context, baseURL string) ([]entities.TranscriptSegment, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caption url: %w", err)
	}
	// Without fmt the endpoint answers with the plain <transcript><text> format.
	q := u.Query()
	q.Del("fmt")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("caption request failed: %w", err)
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]entities.TranscriptSegment, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode captions: %w", err)
	}

	segments := make([]entities.TranscriptSegment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		text := strings.TrimSpace(strings.ReplaceAll(html.UnescapeString(t.Body), "\n", " "))
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(t.Start, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid caption start %q: %w", t.Start, err)
		}
		segments = append(segments, entities.TranscriptSegment{Text: text, Start: start})
	}
	return segments, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept-Language", strings.Join(c.languages, ","))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
