package transcript

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Cue is one caption entry with its native timing.
type Cue struct {
	Text  string
	Start float64
	Dur   float64
}

// End returns the cue's end time. Cues missing a duration get a small default
// so chunk ranges stay non-degenerate.
func (c Cue) End() float64 {
	if c.Dur <= 0 {
		return c.Start + 3
	}
	return c.Start + c.Dur
}

// Result is the outcome of a caption fetch: either a cue list or the reason
// none is available. Unavailability is an expected branch, not an error.
type Result struct {
	Cues   []Cue
	Reason string
}

// Available reports whether usable cues were fetched.
func (r Result) Available() bool { return len(r.Cues) > 0 }

// Unavailable builds a Result carrying the reason no transcript exists.
func Unavailable(reason string) Result { return Result{Reason: reason} }

// Fetcher retrieves the caption track for a video. Implementations return an
// error only for transport-level failures; "this video has no captions" is a
// Result, not an error.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (Result, error)
}

// languages tried in order before giving up on captions.
var languages = []string{"en", "en-US", "en-GB"}

// HTTPFetcher fetches caption tracks from YouTube's timedtext endpoint.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewFetcher creates an HTTPFetcher against the real timedtext endpoint.
func NewFetcher() *HTTPFetcher {
	return NewFetcherWithBaseURL("https://video.google.com/timedtext")
}

// NewFetcherWithBaseURL creates an HTTPFetcher against a custom endpoint.
// Tests point this at a local fake.
func NewFetcherWithBaseURL(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch tries each preferred language in turn and returns the first track
// with usable cues. An empty track for every language yields an unavailable
// Result so the caller can fall back to video analysis.
func (f *HTTPFetcher) Fetch(ctx context.Context, videoID string) (Result, error) {
	var lastErr error
	for _, lang := range languages {
		cues, err := f.fetchTrack(ctx, videoID, lang)
		if err != nil {
			lastErr = err
			continue
		}
		if len(cues) > 0 {
			return Result{Cues: cues}, nil
		}
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("fetching captions for %s: %w", videoID, lastErr)
	}
	return Unavailable("no caption track in any preferred language"), nil
}

func (f *HTTPFetcher) fetchTrack(ctx context.Context, videoID, lang string) ([]Cue, error) {
	url := fmt.Sprintf("%s?v=%s&lang=%s", f.baseURL, videoID, lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading track: %w", err)
	}
	return ParseTimedText(body)
}

// timedtext XML: <transcript><text start="1.2" dur="3.4">...</text></transcript>
type timedText struct {
	Texts []timedTextEntry `xml:"text"`
}

type timedTextEntry struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Body  string  `xml:",chardata"`
}

// ParseTimedText parses YouTube's timedtext XML into cues. Entries with empty
// text are dropped; an empty document parses to zero cues, not an error.
func ParseTimedText(data []byte) ([]Cue, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing timedtext XML: %w", err)
	}

	cues := make([]Cue, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		text := strings.TrimSpace(strings.ReplaceAll(t.Body, "\n", " "))
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Text: text, Start: t.Start, Dur: t.Dur})
	}
	return cues, nil
}
