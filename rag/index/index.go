// Package index implements the per-session vector index: an in-memory,
// append-only store of (chunk, embedding) pairs searched by brute-force
// cosine similarity. Per-session corpora are a handful of documents at
// most, so a linear scan beats any approximate structure here.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tutorkit/tutorkit/rag"
)

// Index stores chunks and their embeddings for one document set. All
// vectors share the embedding backend identity and dimensionality the
// index was established with; mixing backends fails fast.
type Index struct {
	mu       sync.RWMutex
	identity string
	dim      int
	chunks   []rag.Chunk
	vectors  [][]float32
	byID     map[string]int
}

// New creates an empty index bound to the given embedding backend
// identity (for example "openai/text-embedding-3-small").
func New(identity string) *Index {
	return &Index{
		identity: identity,
		byID:     make(map[string]int),
	}
}

// Identity returns the embedding backend identity the index is bound to.
func (ix *Index) Identity() string {
	return ix.identity
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Dimension returns the established vector dimensionality, or 0 while
// the index is empty.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Insert appends a chunk and its embedding. The first insert establishes
// the index dimensionality; later inserts with a different vector length
// return rag.ErrDimensionMismatch.
func (ix *Index) Insert(chunk rag.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector for chunk %s", rag.ErrDimensionMismatch, chunk.ID)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	} else if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, index has %d", rag.ErrDimensionMismatch, len(vector), ix.dim)
	}

	ix.byID[chunk.ID] = len(ix.chunks)
	ix.chunks = append(ix.chunks, chunk)
	ix.vectors = append(ix.vectors, vector)
	return nil
}

// Search returns the top-k chunks by descending cosine similarity to the
// query vector. Ties resolve by insertion order. A k larger than the
// index returns every entry; an empty index returns no results.
func (ix *Index) Search(query []float32, k int) ([]rag.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.chunks) == 0 {
		return []rag.ScoredChunk{}, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", rag.ErrDimensionMismatch, len(query), ix.dim)
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(ix.vectors))
	for i, vec := range ix.vectors {
		scores[i] = scored{pos: i, score: cosineSimilarity(query, vec)}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]rag.ScoredChunk, k)
	for i := 0; i < k; i++ {
		results[i] = rag.ScoredChunk{
			Chunk: ix.chunks[scores[i].pos],
			Score: scores[i].score,
		}
	}
	return results, nil
}

// Retrieve looks up a chunk by id.
func (ix *Index) Retrieve(chunkID string) (rag.Chunk, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	pos, ok := ix.byID[chunkID]
	if !ok {
		return rag.Chunk{}, fmt.Errorf("%w: %s", rag.ErrNotFound, chunkID)
	}
	return ix.chunks[pos], nil
}

// Stats summarizes index contents for observability.
type Stats struct {
	Chunks    int
	Dimension int
	Identity  string
}

// Stats returns the current index statistics.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Chunks:    len(ix.chunks),
		Dimension: ix.dim,
		Identity:  ix.identity,
	}
}

// cosineSimilarity calculates cosine similarity between two vectors of
// equal length.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
