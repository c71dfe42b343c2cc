// Package api exposes the REST surface: video ingestion, chat, visual
// search, cache introspection, and stored-video lookups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/embedcache"
	"github.com/kalambet/ttyv/internal/ingest"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/transcript"
)

const maxRequestBodySize = 1 << 20 // 1MB

// VideoProcessor runs the ingestion pipeline for a video URL.
type VideoProcessor interface {
	Process(ctx context.Context, youtubeURL string) (ingest.Result, error)
}

// Answerer serves chat and visual-search queries against ingested videos.
type Answerer interface {
	Chat(ctx context.Context, videoID, question string) (composer.Answer, error)
	VisualSearch(ctx context.Context, videoID, query string) (composer.VisualResult, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Processor VideoProcessor
	Composer  Answerer
	Cache     *embedcache.Cache
	Store     *storage.Store
	Token     string
}

// NewHandler builds the REST router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/health", handleHealth)
	r.Post("/process_video", handleProcessVideo(deps))
	r.Post("/chat", handleChat(deps))
	r.Post("/visual_search", handleVisualSearch(deps))
	r.Get("/cache/stats", handleCacheStats(deps))
	r.Post("/cache/clear", handleCacheClear(deps))
	r.Get("/video/{id}", handleGetVideo(deps))
	r.Get("/videos", handleListVideos(deps))

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type processVideoRequest struct {
	YouTubeURL string `json:"youtube_url"`
}

type processVideoResponse struct {
	VideoID          string            `json:"video_id"`
	YouTubeURL       string            `json:"youtube_url"`
	Sections         []storage.Section `json:"sections"`
	TranscriptLength int               `json:"transcript_length"`
	ChunksCreated    int               `json:"chunks_created"`
	ProcessingMode   string            `json:"processing_mode"`
}

func handleProcessVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req processVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.YouTubeURL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "youtube_url is required")
			return
		}

		res, err := deps.Processor.Process(r.Context(), req.YouTubeURL)
		switch {
		case errors.Is(err, transcript.ErrInvalidURL):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, ingest.ErrDownloadFailure):
			httpError(w, http.StatusBadGateway, "api_error", "failed to download video: %v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "error processing video: %v", err)
			return
		}

		sections := res.Sections
		if sections == nil {
			sections = []storage.Section{}
		}
		writeJSON(w, processVideoResponse{
			VideoID:          res.VideoID,
			YouTubeURL:       req.YouTubeURL,
			Sections:         sections,
			TranscriptLength: res.TranscriptLength,
			ChunksCreated:    res.ChunksCreated,
			ProcessingMode:   res.ProcessingMode,
		})
	}
}

type chatRequest struct {
	VideoID  string `json:"video_id"`
	Question string `json:"question"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.VideoID == "" || req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "video_id and question are required")
			return
		}

		answer, err := deps.Composer.Chat(r.Context(), req.VideoID, req.Question)
		if errors.Is(err, composer.ErrVideoNotReady) {
			httpError(w, http.StatusNotFound, "not_found", "video not found, process the video first")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "chat failed, please retry: %v", err)
			return
		}
		writeJSON(w, answer)
	}
}

type visualSearchRequest struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query"`
}

func handleVisualSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req visualSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.VideoID == "" || req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "video_id and query are required")
			return
		}

		result, err := deps.Composer.VisualSearch(r.Context(), req.VideoID, req.Query)
		if errors.Is(err, composer.ErrVideoNotReady) {
			httpError(w, http.StatusNotFound, "not_found", "video not found, process the video first")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "visual search failed, please retry: %v", err)
			return
		}
		writeJSON(w, result)
	}
}

func handleCacheStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := deps.Cache.Stats()
		writeJSON(w, map[string]any{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"size":     stats.Size,
			"capacity": stats.Capacity,
		})
	}
}

func handleCacheClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		deps.Cache.Clear()
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func handleGetVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		video, err := deps.Store.GetVideo(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get video: %v", err)
			return
		}
		writeJSON(w, video)
	}
}

func handleListVideos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := deps.Store.ListVideos(50)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list videos: %v", err)
			return
		}
		if videos == nil {
			videos = []storage.Video{}
		}
		writeJSON(w, videos)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
