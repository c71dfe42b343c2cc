// Package transcript resolves YouTube references and fetches caption tracks.
// A fetch produces a tagged result: either the cue list or the reason no
// transcript is available, so the ingestion orchestrator can branch without
// treating missing captions as a failure.
package transcript

import (
	"errors"
	"regexp"
)

// ErrInvalidURL marks a reference that is not a recognizable YouTube URL.
var ErrInvalidURL = errors.New("invalid YouTube URL format (supported: youtube.com/watch?v=, youtu.be/, youtube.com/shorts/, youtube.com/embed/)")

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/embed/([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/v/([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/shorts/([^&\n?#/]+)`),
	regexp.MustCompile(`youtu\.be/shorts/([^&\n?#/]+)`),
}

// ExtractVideoID pulls the video id out of any supported YouTube URL form,
// including Shorts and embed links.
func ExtractVideoID(url string) (string, error) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", ErrInvalidURL
}
