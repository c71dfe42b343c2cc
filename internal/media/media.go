// Package media shells out to yt-dlp and ffmpeg for the video-analysis
// ingestion path: downloading the source file and sampling frames from it.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Downloader fetches a video file to local disk.
type Downloader interface {
	// Download fetches the video and returns the path of the resulting file.
	Download(ctx context.Context, videoID, destDir string) (string, error)
}

// YTDLP downloads videos with the yt-dlp CLI.
type YTDLP struct {
	// Binary overrides the executable name; empty means "yt-dlp" on PATH.
	Binary string
}

// downloadFormat prefers MP4 capped at 720p: the analysis model does not
// benefit from higher resolutions and the upload is smaller.
const downloadFormat = "best[ext=mp4][height<=720]/best[ext=mp4]/best"

// Download fetches the video identified by videoID into destDir.
func (d *YTDLP) Download(ctx context.Context, videoID, destDir string) (string, error) {
	binary := d.Binary
	if binary == "" {
		binary = "yt-dlp"
	}

	outPath := filepath.Join(destDir, videoID+".mp4")
	url := "https://www.youtube.com/watch?v=" + videoID

	cmd := exec.CommandContext(ctx, binary,
		"-f", downloadFormat,
		"-o", outPath,
		"--quiet",
		"--no-warnings",
		url)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp failed for %s: %w\nstderr: %s", videoID, err, strings.TrimSpace(stderr.String()))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("yt-dlp reported success but %s is missing: %w", outPath, err)
	}
	return outPath, nil
}

// Frame is one sampled still with the timestamp it was taken at.
type Frame struct {
	Path    string
	Seconds float64
}

// ExtractFrames samples one frame every interval seconds into outDir and
// returns the frames found afterwards in time order. If ffmpeg dies midway
// but some frames were written, those frames are returned with a warning
// rather than failing the whole job.
func ExtractFrames(ctx context.Context, videoPath, outDir string, interval int) ([]Frame, error) {
	if interval <= 0 {
		interval = 10
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file missing: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating frame directory: %w", err)
	}

	pattern := filepath.Join(outDir, "frame_%04d.jpg")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", interval),
		"-q:v", "3",
		pattern)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	frames, listErr := collectFrames(outDir, interval)
	if listErr != nil {
		return nil, listErr
	}

	if runErr != nil {
		if ctx.Err() != nil {
			// Cancellation stops further extraction; keep what we have.
			return frames, ctx.Err()
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("ffmpeg failed: %w\nstderr: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		slog.Warn("ffmpeg exited with error, continuing with partial frames",
			"frames", len(frames), "error", runErr)
	}
	return frames, nil
}

func collectFrames(dir string, interval int) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "frame_") && strings.HasSuffix(e.Name(), ".jpg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]Frame, len(names))
	for i, name := range names {
		frames[i] = Frame{
			Path: filepath.Join(dir, name),
			// ffmpeg numbers frames from 1; frame N covers the window
			// starting at (N-1)*interval.
			Seconds: float64(i * interval),
		}
	}
	return frames, nil
}
