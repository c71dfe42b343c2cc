// Package timestamp parses and formats the citation grammar used to anchor
// answers and search results to positions in a video: [M:SS] for videos under
// an hour, [H:MM:SS] otherwise.
package timestamp

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// citationPattern matches bracketed citations with 1-2 digit groups only.
// Longer digit runs (e.g. [123:45]) are not citations and must not match.
var citationPattern = regexp.MustCompile(`\[(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?\]`)

// Citation is a single timestamp reference found in free-form text.
type Citation struct {
	// Original is the matched text, brackets included.
	Original string
	// Seconds is the parsed offset from the start of the video.
	Seconds int
	// Index is the byte offset of the match within the scanned text.
	Index int
}

// Parse converts a timestamp string to seconds. Surrounding brackets and
// whitespace are optional. Two fields are read as minutes:seconds, three as
// hours:minutes:seconds.
//
// Minute/second fields over 59 are accepted and summed arithmetically rather
// than rejected: models occasionally emit citations like [75:00], and a
// resolvable second count is more useful than a dropped one. Such fields are
// logged at warn level.
func Parse(text string) (int, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("timestamp %q: expected 2 or 3 fields, got %d", text, len(fields))
	}

	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: field %q is not a number", text, f)
		}
		if v < 0 {
			return 0, fmt.Errorf("timestamp %q: field %q is negative", text, f)
		}
		values[i] = v
	}

	var seconds int
	if len(values) == 2 {
		if values[0] > 59 || values[1] > 59 {
			slog.Warn("timestamp field out of range, summing anyway", "timestamp", text)
		}
		seconds = values[0]*60 + values[1]
	} else {
		if values[1] > 59 || values[2] > 59 {
			slog.Warn("timestamp field out of range, summing anyway", "timestamp", text)
		}
		seconds = values[0]*3600 + values[1]*60 + values[2]
	}
	return seconds, nil
}

// Format renders seconds as a bracketed citation: [M:SS] when the hours
// component is zero, [H:MM:SS] otherwise. The leading unit is unpadded.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h == 0 {
		return fmt.Sprintf("[%d:%02d]", m, s)
	}
	return fmt.Sprintf("[%d:%02d:%02d]", h, m, s)
}

// ExtractAll scans text left to right for bracketed citations and returns
// them in order of appearance. Matches that fail to parse are skipped rather
// than reported as errors, so one malformed citation never loses the rest.
func ExtractAll(text string) []Citation {
	var citations []Citation
	for _, loc := range citationPattern.FindAllStringIndex(text, -1) {
		original := text[loc[0]:loc[1]]
		seconds, err := Parse(original)
		if err != nil {
			continue
		}
		citations = append(citations, Citation{
			Original: original,
			Seconds:  seconds,
			Index:    loc[0],
		})
	}
	return citations
}
