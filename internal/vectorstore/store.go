// Package vectorstore holds the per-video in-memory vector index and the
// cosine-similarity retrieval engine that serves both chat and visual search.
package vectorstore

import (
	"container/heap"
	"math"

	"github.com/kalambet/ttyv/internal/chunk"
	"github.com/kalambet/ttyv/internal/timestamp"
)

// Entry pairs a chunk with its embedding vector.
type Entry struct {
	Chunk  chunk.Chunk
	Vector []float32
}

// Match is one retrieval result. Ephemeral: produced per query, never stored.
type Match struct {
	Chunk chunk.Chunk
	Score float64
	// Citation is the chunk's start time rendered in the [M:SS]/[H:MM:SS]
	// citation grammar.
	Citation string
}

// Store is a per-video append-only vector collection. It is built once during
// ingestion and must not be modified after publication; queries are read-only
// and safe to run concurrently.
type Store struct {
	videoID string
	entries []Entry
}

// New creates an empty Store for the given video.
func New(videoID string) *Store {
	return &Store{videoID: videoID}
}

// VideoID returns the owning video id.
func (s *Store) VideoID() string { return s.videoID }

// Len returns the number of stored vectors.
func (s *Store) Len() int { return len(s.entries) }

// Add appends a chunk/vector pair. Only the ingestion pipeline calls this,
// before the store is published to the registry.
func (s *Store) Add(c chunk.Chunk, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	s.entries = append(s.entries, Entry{Chunk: c, Vector: stored})
}

// DefaultTopK is the result count used when a caller passes k <= 0.
const DefaultTopK = 5

// Search ranks every stored vector by cosine similarity against query and
// returns the top k matches, highest first. Equal scores are broken by
// ascending chunk index so results are deterministic. An empty store yields
// an empty result, never an error.
func (s *Store) Search(query []float32, k int) []Match {
	return s.searchFiltered(query, k, nil)
}

// SearchVisual is Search restricted to chunks that originate from visual
// description. An empty result is a valid "no match" outcome.
func (s *Store) SearchVisual(query []float32, k int) []Match {
	return s.searchFiltered(query, k, func(c chunk.Chunk) bool { return c.Visual })
}

func (s *Store) searchFiltered(query []float32, k int, keep func(chunk.Chunk) bool) []Match {
	if k <= 0 {
		k = DefaultTopK
	}

	queryNorm := norm(query)

	h := &matchHeap{}
	heap.Init(h)

	for _, e := range s.entries {
		if keep != nil && !keep(e.Chunk) {
			continue
		}
		m := Match{Chunk: e.Chunk, Score: cosine(query, e.Vector, queryNorm)}
		if h.Len() < k {
			heap.Push(h, m)
		} else if better(m, (*h)[0]) {
			(*h)[0] = m
			heap.Fix(h, 0)
		}
	}

	results := make([]Match, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Match)
	}
	for i := range results {
		results[i].Citation = timestamp.Format(int(results[i].Chunk.Start))
	}
	return results
}

// better reports whether a should rank above b: higher score wins, equal
// scores go to the earlier chunk.
func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Chunk.Index < b.Chunk.Index
}

// cosine computes dot(a,b) / (|a|*|b|). A zero-magnitude vector on either
// side yields 0 rather than a division fault. aNorm is the precomputed L2
// norm of a. Mismatched lengths score 0.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return dot / (aNorm * bNorm)
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// matchHeap is a min-heap keeping the current worst match on top, so the
// scan phase can maintain the best k seen so far.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
