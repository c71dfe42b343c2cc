package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kalambet/ttyv/internal/gemini"
)

// Compile-time checks.
var (
	_ Engine        = (*Gemini)(nil)
	_ VideoAnalyzer = (*Gemini)(nil)
	_ FrameAnalyzer = (*Gemini)(nil)
)

// Gemini adapts the gemini HTTP client to the Engine interface.
type Gemini struct {
	client   *gemini.Client
	filePoll time.Duration
}

// NewGemini wraps a gemini client. pollInterval controls how often uploaded
// files are polled for readiness; <= 0 uses 5s.
func NewGemini(client *gemini.Client, pollInterval time.Duration) *Gemini {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Gemini{client: client, filePoll: pollInterval}
}

func (g *Gemini) Generate(ctx context.Context, model, prompt string, jsonMode bool) (string, error) {
	return g.client.Generate(ctx, model, []gemini.Part{{Text: prompt}}, jsonMode)
}

func (g *Gemini) Embed(ctx context.Context, model, text string, task EmbedTask) ([]float32, error) {
	return g.client.Embed(ctx, model, text, string(task))
}

// AnalyzeVideo uploads the video, waits until the file service reports it
// ACTIVE, and runs the prompt against it. The uploaded file is deleted on the
// way out regardless of the generation outcome.
func (g *Gemini) AnalyzeVideo(ctx context.Context, model, path, prompt string) (string, error) {
	file, err := g.client.UploadFile(ctx, path, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("uploading video: %w", err)
	}
	defer func() {
		// Cleanup must not be tied to a ctx that may already be cancelled.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.client.DeleteFile(cleanupCtx, file.Name); err != nil {
			slog.Warn("failed to delete uploaded video", "file", file.Name, "error", err)
		}
	}()

	if err := g.client.WaitForFile(ctx, file.Name, g.filePoll); err != nil {
		return "", fmt.Errorf("waiting for video processing: %w", err)
	}

	parts := []gemini.Part{
		{FileData: &gemini.FileData{MimeType: file.MimeType, FileURI: file.URI}},
		{Text: prompt},
	}
	out, err := g.client.Generate(ctx, model, parts, true)
	if err != nil {
		return "", fmt.Errorf("analyzing video: %w", err)
	}
	return out, nil
}

// AnalyzeFrames sends sampled frames inline with the prompt in a single
// generation request. Each frame is preceded by a text part naming its
// timestamp so the model can anchor descriptions in time.
func (g *Gemini) AnalyzeFrames(ctx context.Context, model string, frames []Frame, prompt string) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to analyze")
	}

	parts := make([]gemini.Part, 0, 2*len(frames)+1)
	parts = append(parts, gemini.Part{Text: prompt})
	for _, fr := range frames {
		data, err := os.ReadFile(fr.Path)
		if err != nil {
			return "", fmt.Errorf("reading frame %s: %w", fr.Path, err)
		}
		parts = append(parts,
			gemini.Part{Text: fmt.Sprintf("Frame at %d seconds:", int(fr.Seconds))},
			gemini.Part{InlineData: &gemini.Blob{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		)
	}

	out, err := g.client.Generate(ctx, model, parts, true)
	if err != nil {
		return "", fmt.Errorf("analyzing frames: %w", err)
	}
	return out, nil
}
