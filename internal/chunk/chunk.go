// Package chunk turns normalized video content into timestamped retrieval
// units. A Unit is one transcript cue or one visually described segment; a
// Chunk groups consecutive units under a size/duration budget and is the
// atomic object the retrieval engine ranks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Unit is a single normalized piece of content with its time range.
type Unit struct {
	Text  string
	Start float64
	End   float64
	// Visual marks units that originate from visual description rather
	// than spoken transcript text.
	Visual bool
}

// Chunk is a retrieval unit: consecutive units merged under one time range.
type Chunk struct {
	VideoID string
	// Index is the stable position of the chunk within its video, used for
	// deterministic tie-breaking on equal similarity.
	Index  int
	Text   string
	Start  float64
	End    float64
	Visual bool
}

const (
	// DefaultMaxDuration closes a chunk once the next unit would start this
	// many seconds after the chunk began.
	DefaultMaxDuration = 30.0
	// DefaultMaxChars closes a chunk once its accumulated text reaches this
	// many characters, whichever threshold trips first.
	DefaultMaxChars = 1500
)

// Builder groups units into chunks. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	maxDuration float64
	maxChars    int
}

// NewBuilder creates a Builder with the given thresholds. Non-positive values
// fall back to the defaults.
func NewBuilder(maxDuration float64, maxChars int) *Builder {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{maxDuration: maxDuration, maxChars: maxChars}
}

// Build accumulates consecutive units until the duration or size threshold is
// reached, then closes the chunk with the first unit's start and the last
// unit's end. A unit is never split across chunks; a chunk is visual only if
// every unit in it is visual. Empty input yields no chunks.
func (b *Builder) Build(videoID string, units []Unit) []Chunk {
	var chunks []Chunk

	var texts []string
	var size int
	var start, end float64
	visual := true
	open := false

	flush := func() {
		if !open {
			return
		}
		chunks = append(chunks, Chunk{
			VideoID: videoID,
			Index:   len(chunks),
			Text:    strings.Join(texts, " "),
			Start:   start,
			End:     end,
			Visual:  visual,
		})
		texts = texts[:0]
		size = 0
		visual = true
		open = false
	}

	for i, u := range units {
		if !open {
			start = u.Start
			open = true
		}
		texts = append(texts, u.Text)
		size += len(u.Text)
		end = u.End
		if !u.Visual {
			visual = false
		}

		last := i == len(units)-1
		if last || units[i+1].Start-start >= b.maxDuration || size >= b.maxChars {
			flush()
		}
	}

	return chunks
}

var whitespace = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Fingerprint returns a deterministic cache key for the given text. The text
// is lowercased and has its whitespace collapsed first, so chunks or queries
// that differ only in case or spacing share one cache entry.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(whitespace.Replace(strings.ToLower(text))), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
