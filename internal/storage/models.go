package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Processing modes recorded on a video.
const (
	ModeTranscript    = "transcript"
	ModeVideoAnalysis = "video_analysis"
)

// Video is the persisted record of one processed video. It is written
// wholesale on successful ingestion and replaced wholesale on re-ingestion;
// embeddings are deliberately not persisted (the in-memory vector store is
// rebuilt on ingest).
type Video struct {
	VideoID          string    `json:"video_id"`
	YouTubeURL       string    `json:"youtube_url"`
	ProcessingMode   string    `json:"processing_mode"`
	TranscriptLength int       `json:"transcript_length"`
	CreatedAt        time.Time `json:"created_at"`
	Sections         []Section `json:"sections,omitempty"`
	Chunks           []Chunk   `json:"chunks,omitempty"`
}

// Section is a display/navigation unit: a titled, summarized span of the
// video. Sections are never used for retrieval.
type Section struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
}

// Chunk mirrors the retrieval chunk without its embedding vector.
type Chunk struct {
	Idx    int     `json:"idx"`
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Visual bool    `json:"visual,omitempty"`
}
