package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/embedcache"
	"github.com/kalambet/ttyv/internal/ingest"
	"github.com/kalambet/ttyv/internal/storage"
)

type fakeProcessor struct {
	result ingest.Result
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, _ string) (ingest.Result, error) {
	return f.result, f.err
}

type fakeComposer struct {
	answer    composer.Answer
	visual    composer.VisualResult
	chatErr   error
	visualErr error
}

func (f *fakeComposer) Chat(_ context.Context, _, _ string) (composer.Answer, error) {
	return f.answer, f.chatErr
}

func (f *fakeComposer) VisualSearch(_ context.Context, _, _ string) (composer.VisualResult, error) {
	return f.visual, f.visualErr
}

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Cache == nil {
		cache, err := embedcache.New(10, 3)
		if err != nil {
			t.Fatal(err)
		}
		deps.Cache = cache
	}
	if deps.Store == nil {
		db, err := storage.Open(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		deps.Store = db
	}
	return NewHandler(deps)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcessVideo(t *testing.T) {
	h := newTestHandler(t, Deps{
		Processor: &fakeProcessor{result: ingest.Result{
			VideoID:          "abc123def45",
			Sections:         []storage.Section{{Title: "Intro", Start: 0, End: 45, Summary: "opening"}},
			TranscriptLength: 12,
			ChunksCreated:    4,
			ProcessingMode:   storage.ModeTranscript,
		}},
		Composer: &fakeComposer{},
	})

	rec := doJSON(t, h, http.MethodPost, "/process_video", `{"youtube_url":"https://www.youtube.com/watch?v=abc123def45"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp processVideoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.VideoID != "abc123def45" || resp.ChunksCreated != 4 || resp.ProcessingMode != "transcript" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Sections) != 1 || resp.Sections[0].Title != "Intro" {
		t.Errorf("sections = %+v", resp.Sections)
	}
}

func TestProcessVideoValidation(t *testing.T) {
	h := newTestHandler(t, Deps{Processor: &fakeProcessor{}, Composer: &fakeComposer{}})

	cases := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"malformed json", `{"youtube_url":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/process_video", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChat(t *testing.T) {
	h := newTestHandler(t, Deps{
		Processor: &fakeProcessor{},
		Composer: &fakeComposer{answer: composer.Answer{
			Answer:             "The demo starts at [1:05].",
			RelevantTimestamps: []composer.TimestampRef{{Timestamp: 65, Text: "the demo begins"}},
			SourcesCount:       2,
		}},
	})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"video_id":"abc","question":"when is the demo?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp composer.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SourcesCount != 2 || !strings.Contains(resp.Answer, "[1:05]") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChatVideoNotReady(t *testing.T) {
	h := newTestHandler(t, Deps{
		Processor: &fakeProcessor{},
		Composer:  &fakeComposer{chatErr: fmt.Errorf("video abc: %w", composer.ErrVideoNotReady)},
	})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"video_id":"abc","question":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChatRemoteFailure(t *testing.T) {
	h := newTestHandler(t, Deps{
		Processor: &fakeProcessor{},
		Composer:  &fakeComposer{chatErr: fmt.Errorf("generating answer: 429")},
	})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"video_id":"abc","question":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestVisualSearch(t *testing.T) {
	h := newTestHandler(t, Deps{
		Processor: &fakeProcessor{},
		Composer: &fakeComposer{visual: composer.VisualResult{
			Matches: []composer.VisualMatch{
				{Timestamp: 40, EndTimestamp: 70, Description: "a bar chart", Confidence: "high"},
			},
			TotalMatches: 1,
		}},
	})

	rec := doJSON(t, h, http.MethodPost, "/visual_search", `{"video_id":"abc","query":"chart"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp composer.VisualResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalMatches != 1 || resp.Matches[0].Confidence != "high" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCacheEndpoints(t *testing.T) {
	cache, err := embedcache.New(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Put("k", []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	cache.Get("k")
	cache.Get("missing")

	h := newTestHandler(t, Deps{Processor: &fakeProcessor{}, Composer: &fakeComposer{}, Cache: cache})

	rec := doJSON(t, h, http.MethodGet, "/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["hits"] != 1 || stats["misses"] != 1 || stats["size"] != 1 || stats["capacity"] != 10 {
		t.Errorf("stats = %v", stats)
	}

	rec = doJSON(t, h, http.MethodPost, "/cache/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if got := cache.Stats().Size; got != 0 {
		t.Errorf("size after clear = %d", got)
	}
}

func TestGetVideo(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.SaveVideo(storage.Video{
		VideoID:        "abc",
		YouTubeURL:     "https://www.youtube.com/watch?v=abc",
		ProcessingMode: storage.ModeTranscript,
		Sections:       []storage.Section{{Title: "Intro", Start: 0, End: 10}},
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, Deps{Processor: &fakeProcessor{}, Composer: &fakeComposer{}, Store: db})

	rec := doJSON(t, h, http.MethodGet, "/video/abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var video storage.Video
	if err := json.Unmarshal(rec.Body.Bytes(), &video); err != nil {
		t.Fatal(err)
	}
	if video.VideoID != "abc" || len(video.Sections) != 1 {
		t.Errorf("video = %+v", video)
	}

	rec = doJSON(t, h, http.MethodGet, "/video/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing video status = %d, want 404", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, Deps{Processor: &fakeProcessor{}, Composer: &fakeComposer{}, Token: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWithEmptyToken(t *testing.T) {
	h := newTestHandler(t, Deps{Processor: &fakeProcessor{}, Composer: &fakeComposer{}})

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without auth configured", rec.Code)
	}
}
