package transcript

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"with timestamp param", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", false},
		{"other site", "https://example.com/video", "", true},
		{"not a url", "not a url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractVideoID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidURL) {
				t.Errorf("error = %v, want ErrInvalidURL", err)
			}
			if got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

const sampleTimedText = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0" dur="4.2">welcome to the video</text>
  <text start="4.2" dur="3.1">today we cover retrieval</text>
  <text start="7.3" dur="2.5">
and citations</text>
  <text start="9.8" dur="1"></text>
</transcript>`

func TestParseTimedText(t *testing.T) {
	cues, err := ParseTimedText([]byte(sampleTimedText))
	if err != nil {
		t.Fatalf("ParseTimedText: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3 (empty cue dropped)", len(cues))
	}
	if cues[0].Text != "welcome to the video" || cues[0].Start != 0 || cues[0].Dur != 4.2 {
		t.Errorf("first cue = %+v", cues[0])
	}
	if cues[2].Text != "and citations" {
		t.Errorf("newline not cleaned: %q", cues[2].Text)
	}
}

func TestParseTimedTextEmpty(t *testing.T) {
	cues, err := ParseTimedText([]byte(""))
	if err != nil || len(cues) != 0 {
		t.Errorf("empty body: cues=%d err=%v", len(cues), err)
	}
}

func TestCueEnd(t *testing.T) {
	if got := (Cue{Start: 10, Dur: 5}).End(); got != 15 {
		t.Errorf("End() = %v, want 15", got)
	}
	// Missing duration takes the default.
	if got := (Cue{Start: 10}).End(); got != 13 {
		t.Errorf("End() with zero dur = %v, want 13", got)
	}
}

func TestFetchAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "vid1" {
			t.Errorf("unexpected video id %q", r.URL.Query().Get("v"))
		}
		w.Write([]byte(sampleTimedText))
	}))
	defer srv.Close()

	f := NewFetcherWithBaseURL(srv.URL)
	res, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Available() {
		t.Fatalf("expected available result, got reason %q", res.Reason)
	}
	if len(res.Cues) != 3 {
		t.Errorf("got %d cues, want 3", len(res.Cues))
	}
}

func TestFetchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// YouTube answers 200 with an empty body when no track exists.
	}))
	defer srv.Close()

	f := NewFetcherWithBaseURL(srv.URL)
	res, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Available() {
		t.Error("expected unavailable result")
	}
	if res.Reason == "" {
		t.Error("unavailable result should carry a reason")
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcherWithBaseURL(srv.URL)
	if _, err := f.Fetch(context.Background(), "vid1"); err == nil {
		t.Error("expected transport error")
	}
}

func TestFetchLanguageFallback(t *testing.T) {
	var langs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := r.URL.Query().Get("lang")
		langs = append(langs, lang)
		if lang == "en-GB" {
			w.Write([]byte(sampleTimedText))
		}
	}))
	defer srv.Close()

	f := NewFetcherWithBaseURL(srv.URL)
	res, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Available() {
		t.Fatal("expected fallback language to succeed")
	}
	if len(langs) != 3 {
		t.Errorf("tried languages %v, want all three", langs)
	}
}
