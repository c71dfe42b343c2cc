// Package composer turns retrieved chunks into user-facing answers. It owns
// the RAG prompt for chat, the visual-search matching logic, and the citation
// post-processing that makes timestamps clickable on the client.
package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/ttyv/internal/chunk"
	"github.com/kalambet/ttyv/internal/embedcache"
	"github.com/kalambet/ttyv/internal/engine"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/timestamp"
	"github.com/kalambet/ttyv/internal/vectorstore"
)

// ErrVideoNotReady is returned when a query targets a video that has not
// finished ingestion or was never processed.
var ErrVideoNotReady = errors.New("video not ready")

const chatPrompt = `You are a helpful video analysis assistant. Answer the user's question based on the video content provided.

Context from video (with timestamps):
%s

Question: %s

IMPORTANT INSTRUCTIONS:
1. In your answer, include timestamp citations in [M:SS] or [H:MM:SS] format for any specific portions of the video you reference
2. Use timestamps from the context provided above
3. Wrap every timestamp in square brackets so it can be rendered as a link
4. Be specific and cite multiple timestamps when relevant

Answer naturally and conversationally, but include timestamp citations for accuracy.`

const visualFallbackPrompt = `Analyze this video content and find moments that match the visual query: %q

Content with timestamps:
%s

Based on the content, infer which moments likely contain the visual material described.
For example:
- "charts" or "graphs": look for mentions of data, statistics, visualizations
- "person speaking": look for direct speech, presenter dialogue
- "code": look for technical terms, programming concepts, code examples

Return ONLY a valid JSON object in this exact format:
{
    "matches": [
        {
            "timestamp": 45.0,
            "end_timestamp": 52.0,
            "description": "Description of what's shown at this moment",
            "confidence": "high"
        }
    ]
}

Find up to 8 relevant moments, using exact times from the content.
If no matches are found, return an empty matches array.`

// Config carries the model names and retrieval depth the composer uses.
type Config struct {
	GenerateModel string
	EmbedModel    string
	TopK          int
	// RequestTimeout bounds each remote generate/embed call.
	RequestTimeout time.Duration
}

// Composer answers chat questions and visual-search queries against videos
// that have been ingested into the vector store registry.
type Composer struct {
	engine engine.Engine
	cache  *embedcache.Cache
	stores *vectorstore.Registry
	db     *storage.Store
	cfg    Config
}

func New(eng engine.Engine, cache *embedcache.Cache, stores *vectorstore.Registry, db *storage.Store, cfg Config) *Composer {
	if cfg.TopK <= 0 {
		cfg.TopK = vectorstore.DefaultTopK
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Composer{engine: eng, cache: cache, stores: stores, db: db, cfg: cfg}
}

// callCtx derives the bounded context used for a single remote call.
func (c *Composer) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

// TimestampRef points a client at a retrieved chunk.
type TimestampRef struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}

// Answer is the result of a chat query.
type Answer struct {
	Answer             string               `json:"answer"`
	RelevantTimestamps []TimestampRef       `json:"relevant_timestamps"`
	SourcesCount       int                  `json:"sources_count"`
	Citations          []timestamp.Citation `json:"citations,omitempty"`
}

// Chat embeds the question, retrieves the most similar chunks, and asks the
// generative model for an answer grounded in them. Citations in the generated
// text are extracted for client-side rendering; ones that fail to parse stay
// as plain text.
func (c *Composer) Chat(ctx context.Context, videoID, question string) (Answer, error) {
	store, ok := c.stores.Get(videoID)
	if !ok {
		return Answer{}, fmt.Errorf("video %s: %w", videoID, ErrVideoNotReady)
	}

	vec, err := c.embedQuery(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	matches := store.Search(vec, c.cfg.TopK)

	var ctxParts []string
	refs := make([]TimestampRef, 0, len(matches))
	for _, m := range matches {
		ctxParts = append(ctxParts, m.Citation+" "+m.Chunk.Text)
		refs = append(refs, TimestampRef{
			Timestamp: m.Chunk.Start,
			Text:      truncate(m.Chunk.Text, 100),
		})
	}

	prompt := fmt.Sprintf(chatPrompt, strings.Join(ctxParts, "\n\n"), question)
	gctx, cancel := c.callCtx(ctx)
	defer cancel()
	text, err := c.engine.Generate(gctx, c.cfg.GenerateModel, prompt, false)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	return Answer{
		Answer:             text,
		RelevantTimestamps: refs,
		SourcesCount:       len(matches),
		Citations:          timestamp.ExtractAll(text),
	}, nil
}

// VisualMatch is one moment matching a visual-search query.
type VisualMatch struct {
	Timestamp    float64 `json:"timestamp"`
	EndTimestamp float64 `json:"end_timestamp"`
	Description  string  `json:"description"`
	Confidence   string  `json:"confidence"`
}

// VisualResult is the full response to a visual search. An empty Matches
// slice is a valid outcome meaning nothing in the video fit the query.
type VisualResult struct {
	Matches      []VisualMatch `json:"matches"`
	TotalMatches int           `json:"total_matches"`
}

// VisualSearch ranks visually-described chunks against the query. Videos
// ingested via the transcript path carry no visual chunks, so for those the
// search falls back to asking the generative model to infer visual moments
// from the transcript content.
func (c *Composer) VisualSearch(ctx context.Context, videoID, query string) (VisualResult, error) {
	store, ok := c.stores.Get(videoID)
	if !ok {
		return VisualResult{}, fmt.Errorf("video %s: %w", videoID, ErrVideoNotReady)
	}

	vec, err := c.embedQuery(ctx, query)
	if err != nil {
		return VisualResult{}, err
	}

	matches := store.SearchVisual(vec, c.cfg.TopK)
	if len(matches) == 0 {
		return c.visualFallback(ctx, videoID, query)
	}

	out := make([]VisualMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, VisualMatch{
			Timestamp:    m.Chunk.Start,
			EndTimestamp: m.Chunk.End,
			Description:  m.Chunk.Text,
			Confidence:   confidenceBand(m.Score),
		})
	}
	return VisualResult{Matches: out, TotalMatches: len(out)}, nil
}

// visualFallback asks the generative model to infer visual moments from the
// stored transcript chunks when no native visual descriptions exist.
func (c *Composer) visualFallback(ctx context.Context, videoID, query string) (VisualResult, error) {
	video, err := c.db.GetVideo(videoID)
	if errors.Is(err, storage.ErrNotFound) {
		return VisualResult{}, fmt.Errorf("video %s: %w", videoID, ErrVideoNotReady)
	}
	if err != nil {
		return VisualResult{}, fmt.Errorf("loading video %s: %w", videoID, err)
	}

	var lines []string
	for _, ch := range video.Chunks {
		lines = append(lines, timestamp.Format(int(ch.Start))+" "+ch.Text)
	}

	prompt := fmt.Sprintf(visualFallbackPrompt, query, strings.Join(lines, "\n"))
	gctx, cancel := c.callCtx(ctx)
	defer cancel()
	text, err := c.engine.Generate(gctx, c.cfg.GenerateModel, prompt, true)
	if err != nil {
		return VisualResult{}, fmt.Errorf("generating visual matches: %w", err)
	}

	raw, err := engine.ExtractJSON(text)
	if err != nil {
		return VisualResult{}, fmt.Errorf("parsing visual matches: %w", err)
	}
	var parsed struct {
		Matches []VisualMatch `json:"matches"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return VisualResult{}, fmt.Errorf("parsing visual matches: %w", err)
	}
	if parsed.Matches == nil {
		parsed.Matches = []VisualMatch{}
	}
	return VisualResult{Matches: parsed.Matches, TotalMatches: len(parsed.Matches)}, nil
}

// embedQuery returns the embedding for a query string, consulting the cache
// before calling the remote engine. The cache lookup and insert never span
// the network call.
func (c *Composer) embedQuery(ctx context.Context, text string) ([]float32, error) {
	key := chunk.Fingerprint(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	ectx, cancel := c.callCtx(ctx)
	defer cancel()
	vec, err := c.engine.Embed(ectx, c.cfg.EmbedModel, text, engine.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := c.cache.Put(key, vec); err != nil {
		return nil, fmt.Errorf("caching query embedding: %w", err)
	}
	return vec, nil
}

func confidenceBand(score float64) string {
	switch {
	case score >= 0.75:
		return "high"
	case score >= 0.55:
		return "medium"
	default:
		return "low"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
