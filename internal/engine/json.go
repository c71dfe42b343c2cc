package engine

import (
	"fmt"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON pulls a JSON object out of a model response. Models asked for
// JSON sometimes wrap it in a markdown code fence or prepend prose; this
// strips both. Returns the raw JSON bytes for the caller to unmarshal.
func ExtractJSON(text string) ([]byte, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return []byte(m[1]), nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return []byte(text[start : end+1]), nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}
	return []byte(trimmed), nil
}
