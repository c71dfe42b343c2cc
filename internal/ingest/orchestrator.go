// Package ingest drives the pipeline that turns a YouTube URL into a
// queryable video record: transcript fetch (or video download and analysis),
// chunking, embedding, and publication into the vector store registry.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/ttyv/internal/chunk"
	"github.com/kalambet/ttyv/internal/embedcache"
	"github.com/kalambet/ttyv/internal/engine"
	"github.com/kalambet/ttyv/internal/media"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/timestamp"
	"github.com/kalambet/ttyv/internal/transcript"
	"github.com/kalambet/ttyv/internal/vectorstore"
)

var (
	// ErrDownloadFailure means the source video could not be fetched.
	ErrDownloadFailure = errors.New("video download failed")
	// ErrAnalysisFailed means neither native video analysis nor frame
	// sampling produced usable content.
	ErrAnalysisFailed = errors.New("video analysis failed")
	// ErrNoChunks means every chunk failed to embed, so there is nothing
	// to publish.
	ErrNoChunks = errors.New("no chunks could be embedded")
)

const retryBaseDelay = time.Second

const sectionPrompt = `Analyze this video transcript and create a section breakdown.
Each section should have a clear title, start time (in seconds), end time (in seconds), and brief summary.

Transcript with timestamps:
%s

Return ONLY a valid JSON object (no markdown formatting) in this exact format:
{
    "sections": [
        {
            "title": "Introduction",
            "start_time": 0.0,
            "end_time": 45.0,
            "summary": "Brief summary of what's covered in this section"
        }
    ]
}

Create 3-7 logical sections based on the content. Make timestamps precise and summaries concise (1-2 sentences).`

const videoAnalysisPrompt = `Analyze this video and provide a detailed breakdown with timestamps.

Return ONLY a valid JSON object (no markdown formatting) in this exact format:
{
    "sections": [
        {
            "title": "Section Title",
            "start_time": 0.0,
            "end_time": 45.0,
            "summary": "Brief summary of what's covered in this section"
        }
    ]
}

Create 3-7 logical sections based on the video content. Make timestamps precise and summaries concise (1-2 sentences).`

const frameAnalysisPrompt = `These are frames sampled from a video, each labelled with the second it was taken at.
Describe what the video covers as a section breakdown.

Return ONLY a valid JSON object (no markdown formatting) in this exact format:
{
    "sections": [
        {
            "title": "Section Title",
            "start_time": 0.0,
            "end_time": 45.0,
            "summary": "Brief summary of what's shown in this section"
        }
    ]
}

Create 3-7 logical sections. Use the frame timestamps to anchor start and end times.`

// Config carries the tunables the orchestrator needs.
type Config struct {
	GenerateModel    string
	EmbedModel       string
	ChunkDuration    float64
	ChunkMaxChars    int
	FrameInterval    int
	EmbedConcurrency int
	MaxRetries       int
	WorkDir          string
	// RequestTimeout bounds each generate/embed call; AnalysisTimeout
	// bounds the whole download-and-analyze step.
	RequestTimeout  time.Duration
	AnalysisTimeout time.Duration
}

// Result summarizes a finished ingestion for the API response.
type Result struct {
	VideoID          string
	Sections         []storage.Section
	TranscriptLength int
	ChunksCreated    int
	ProcessingMode   string
}

// Orchestrator runs the ingestion state machine. Concurrent requests for the
// same video id join a single in-flight run instead of duplicating work.
type Orchestrator struct {
	transcripts transcript.Fetcher
	downloader  media.Downloader
	engine      engine.Engine
	cache       *embedcache.Cache
	stores      *vectorstore.Registry
	db          *storage.Store
	cfg         Config
	group       singleflight.Group
	logger      *slog.Logger
}

func New(transcripts transcript.Fetcher, downloader media.Downloader, eng engine.Engine,
	cache *embedcache.Cache, stores *vectorstore.Registry, db *storage.Store, cfg Config) *Orchestrator {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 10 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Orchestrator{
		transcripts: transcripts,
		downloader:  downloader,
		engine:      eng,
		cache:       cache,
		stores:      stores,
		db:          db,
		cfg:         cfg,
		logger:      slog.Default(),
	}
}

// Process ingests the video referenced by youtubeURL. A second call for the
// same video while one is in flight joins the first run's result; a call
// after a completed run re-ingests and replaces the record wholesale.
func (o *Orchestrator) Process(ctx context.Context, youtubeURL string) (Result, error) {
	videoID, err := transcript.ExtractVideoID(youtubeURL)
	if err != nil {
		return Result{}, err
	}

	v, err, shared := o.group.Do(videoID, func() (any, error) {
		return o.ingest(ctx, videoID, youtubeURL)
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		o.logger.Debug("joined in-flight ingestion", "video_id", videoID)
	}
	return v.(Result), nil
}

func (o *Orchestrator) ingest(ctx context.Context, videoID, youtubeURL string) (Result, error) {
	// Re-ingesting the same video is normal, the run id keeps the log
	// streams of successive runs apart.
	log := o.logger.With("video_id", videoID, "run_id", uuid.New().String()[:8])
	log.Info("ingestion started", "url", youtubeURL)

	// Path selection is a one-time decision: transcript when any usable
	// cues exist, otherwise full video analysis.
	var (
		units    []chunk.Unit
		sections []storage.Section
		mode     string
		cueCount int
	)

	tr, err := o.transcripts.Fetch(ctx, videoID)
	if err != nil {
		log.Warn("transcript fetch failed, falling back to video analysis", "error", err)
		tr = transcript.Unavailable(err.Error())
	}

	if tr.Available() {
		cueCount = len(tr.Cues)
		mode = storage.ModeTranscript
		log.Info("transcript available", "cues", cueCount)

		units = cueUnits(tr.Cues)
		sections = o.sectionBreakdown(ctx, log, tr.Cues)
	} else {
		mode = storage.ModeVideoAnalysis
		log.Info("no transcript, analyzing video", "reason", tr.Reason)

		sections, err = o.analyzeVideo(ctx, log, videoID)
		if err != nil {
			return Result{}, err
		}
		units = sectionUnits(sections)
	}
	log.Info("content normalized", "units", len(units), "mode", mode)

	builder := chunk.NewBuilder(o.cfg.ChunkDuration, o.cfg.ChunkMaxChars)
	chunks := builder.Build(videoID, units)
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("video %s produced no content: %w", videoID, ErrNoChunks)
	}
	log.Info("content chunked", "chunks", len(chunks))

	store, embedded, err := o.embedChunks(ctx, log, videoID, chunks)
	if err != nil {
		return Result{}, err
	}
	log.Info("chunks embedded", "succeeded", len(embedded), "failed", len(chunks)-len(embedded))

	// The record mirrors the store: only chunks that embedded are
	// persisted, so /video/{id} never lists more than /chat can search.
	record := storage.Video{
		VideoID:          videoID,
		YouTubeURL:       youtubeURL,
		ProcessingMode:   mode,
		TranscriptLength: cueCount,
		CreatedAt:        time.Now().UTC(),
		Sections:         sections,
		Chunks:           storageChunks(embedded),
	}
	if err := o.db.SaveVideo(record); err != nil {
		return Result{}, fmt.Errorf("persisting video %s: %w", videoID, err)
	}

	// Single atomic handoff, after persistence: a failed ingestion leaves
	// no queryable store, a finished one swaps record and store together.
	o.stores.Publish(store)

	log.Info("ingestion complete", "mode", mode, "chunks", store.Len())
	return Result{
		VideoID:          videoID,
		Sections:         sections,
		TranscriptLength: cueCount,
		ChunksCreated:    store.Len(),
		ProcessingMode:   mode,
	}, nil
}

// sectionBreakdown asks the model to split the transcript into sections.
// Sections are display-only, so a failure here degrades to an empty list
// instead of failing the ingestion.
func (o *Orchestrator) sectionBreakdown(ctx context.Context, log *slog.Logger, cues []transcript.Cue) []storage.Section {
	var sb strings.Builder
	for _, cue := range cues {
		sb.WriteString(timestamp.Format(int(cue.Start)))
		sb.WriteString(" ")
		sb.WriteString(cue.Text)
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(sectionPrompt, sb.String())
	gctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	text, err := o.engine.Generate(gctx, o.cfg.GenerateModel, prompt, true)
	if err != nil {
		log.Warn("section breakdown failed", "error", err)
		return nil
	}
	sections, err := parseSections(text)
	if err != nil {
		log.Warn("section breakdown unparseable", "error", err)
		return nil
	}
	return sections
}

// analyzeVideo downloads the source file and produces sections from it, using
// native video analysis when the engine supports it and falling back to
// sampled frames otherwise.
func (o *Orchestrator) analyzeVideo(ctx context.Context, log *slog.Logger, videoID string) ([]storage.Section, error) {
	workDir, err := os.MkdirTemp(o.cfg.WorkDir, "ttyv-"+videoID+"-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	path, err := o.downloader.Download(ctx, videoID, workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	log.Info("video downloaded", "path", path)

	actx, cancel := context.WithTimeout(ctx, o.cfg.AnalysisTimeout)
	defer cancel()

	if analyzer, ok := o.engine.(engine.VideoAnalyzer); ok {
		text, err := analyzer.AnalyzeVideo(actx, o.cfg.GenerateModel, path, videoAnalysisPrompt)
		if err == nil {
			return parseSections(text)
		}
		log.Warn("native video analysis failed, sampling frames", "error", err)
	}

	analyzer, ok := o.engine.(engine.FrameAnalyzer)
	if !ok {
		return nil, fmt.Errorf("%w: engine cannot analyze video content", ErrAnalysisFailed)
	}

	frames, err := media.ExtractFrames(actx, path, workDir, o.cfg.FrameInterval)
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames extracted: %v", ErrAnalysisFailed, err)
	}
	if err != nil {
		log.Warn("partial frame extraction, continuing with what we have", "frames", len(frames), "error", err)
	}

	text, err := analyzer.AnalyzeFrames(actx, o.cfg.GenerateModel, engineFrames(frames), frameAnalysisPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	return parseSections(text)
}

// embedChunks obtains a vector for every chunk, cache first, and builds the
// video's store. A chunk whose embedding fails (remote error after retries,
// or a wrong-dimension vector) is dropped; ingestion fails only when nothing
// embeds at all. The returned slice holds the chunks that made it into the
// store, in index order.
func (o *Orchestrator) embedChunks(ctx context.Context, log *slog.Logger, videoID string, chunks []chunk.Chunk) (*vectorstore.Store, []chunk.Chunk, error) {
	vecs := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.EmbedConcurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			key := chunk.Fingerprint(ch.Text)
			if vec, ok := o.cache.Get(key); ok {
				vecs[i] = vec
				return nil
			}

			vec, err := o.embedWithRetry(gctx, ch.Text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("chunk embedding failed", "chunk", ch.Index, "error", err)
				return nil
			}
			if err := o.cache.Put(key, vec); err != nil {
				// Wrong dimension is a data-integrity fault; drop the
				// chunk, not the video.
				log.Warn("rejecting chunk embedding", "chunk", ch.Index, "error", err)
				return nil
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("embedding chunks for %s: %w", videoID, err)
	}

	store := vectorstore.New(videoID)
	embedded := make([]chunk.Chunk, 0, len(chunks))
	for i, ch := range chunks {
		if vecs[i] != nil {
			store.Add(ch, vecs[i])
			embedded = append(embedded, ch)
		}
	}
	if store.Len() == 0 {
		return nil, nil, fmt.Errorf("video %s: %w", videoID, ErrNoChunks)
	}
	return store, embedded, nil
}

func (o *Orchestrator) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBaseDelay):
			}
		}
		ectx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		vec, err := o.engine.Embed(ectx, o.cfg.EmbedModel, text, engine.TaskDocument)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", o.cfg.MaxRetries+1, lastErr)
}

func cueUnits(cues []transcript.Cue) []chunk.Unit {
	units := make([]chunk.Unit, 0, len(cues))
	for _, cue := range cues {
		units = append(units, chunk.Unit{
			Text:  cue.Text,
			Start: cue.Start,
			End:   cue.End(),
		})
	}
	return units
}

// sectionUnits turns analyzed sections into normalizer units. Everything on
// this path originated from visual content.
func sectionUnits(sections []storage.Section) []chunk.Unit {
	units := make([]chunk.Unit, 0, len(sections))
	for _, s := range sections {
		text := s.Title
		if s.Summary != "" {
			text += ": " + s.Summary
		}
		units = append(units, chunk.Unit{
			Text:   text,
			Start:  s.Start,
			End:    s.End,
			Visual: true,
		})
	}
	return units
}

func storageChunks(chunks []chunk.Chunk) []storage.Chunk {
	out := make([]storage.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, storage.Chunk{
			Idx:    ch.Index,
			Text:   ch.Text,
			Start:  ch.Start,
			End:    ch.End,
			Visual: ch.Visual,
		})
	}
	return out
}

func engineFrames(frames []media.Frame) []engine.Frame {
	out := make([]engine.Frame, 0, len(frames))
	for _, f := range frames {
		out = append(out, engine.Frame{Path: f.Path, Seconds: f.Seconds})
	}
	return out
}

func parseSections(text string) ([]storage.Section, error) {
	raw, err := engine.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Sections []struct {
			Title     string  `json:"title"`
			StartTime float64 `json:"start_time"`
			EndTime   float64 `json:"end_time"`
			Summary   string  `json:"summary"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing sections: %w", err)
	}

	sections := make([]storage.Section, 0, len(parsed.Sections))
	for _, s := range parsed.Sections {
		sections = append(sections, storage.Section{
			Title:   s.Title,
			Summary: s.Summary,
			Start:   s.StartTime,
			End:     s.EndTime,
		})
	}
	return sections, nil
}
