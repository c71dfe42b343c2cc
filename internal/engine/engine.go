// Package engine abstracts the remote generative/embedding service behind an
// interface so retrieval and ingestion logic can be tested with a
// deterministic fake. Two implementations ship: Gemini (the default, and the
// only one that understands video files) and any OpenAI-compatible server.
package engine

import "context"

// EmbedTask tells the embedding model what the vector will be used for.
type EmbedTask string

const (
	// TaskDocument embeds content that will be stored and searched over.
	TaskDocument EmbedTask = "RETRIEVAL_DOCUMENT"
	// TaskQuery embeds a search query.
	TaskQuery EmbedTask = "RETRIEVAL_QUERY"
)

// Engine is the contract to the remote model service. All calls are blocking
// and honor ctx deadlines; they are the only suspension points in the system.
type Engine interface {
	// Generate sends a prompt to the model and returns the response text.
	// When jsonMode is true the model is instructed to reply with JSON.
	Generate(ctx context.Context, model, prompt string, jsonMode bool) (string, error)

	// Embed returns the fixed-dimension embedding vector for text.
	Embed(ctx context.Context, model, text string, task EmbedTask) ([]float32, error)
}

// VideoAnalyzer is implemented by engines that can analyze a video file
// natively. The ingestion orchestrator falls back to frame sampling when the
// configured engine does not implement it.
type VideoAnalyzer interface {
	// AnalyzeVideo uploads the file at path, waits for it to become
	// available, runs prompt against it, and cleans the file up afterwards.
	AnalyzeVideo(ctx context.Context, model, path, prompt string) (string, error)
}

// Frame is a single sampled video frame on local disk.
type Frame struct {
	Path    string
	Seconds float64
}

// FrameAnalyzer is implemented by engines that can describe a batch of still
// frames. Used when native video analysis is unavailable or fails.
type FrameAnalyzer interface {
	AnalyzeFrames(ctx context.Context, model string, frames []Frame, prompt string) (string, error)
}
