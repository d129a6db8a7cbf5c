package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorkit/tutorkit/rag"
)

func chunk(id string, seq int) rag.Chunk {
	return rag.Chunk{ID: id, DocumentID: "doc-1", SequenceIndex: seq, Text: "text " + id}
}

func TestIndex_InsertAndSearch(t *testing.T) {
	ix := New("mock/test")

	require.NoError(t, ix.Insert(chunk("a", 0), []float32{1, 0, 0}))
	require.NoError(t, ix.Insert(chunk("b", 1), []float32{0, 1, 0}))
	require.NoError(t, ix.Insert(chunk("c", 2), []float32{0.9, 0.1, 0}))

	results, err := ix.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "c", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := New("mock/test")
	require.NoError(t, ix.Insert(chunk("a", 0), []float32{1, 0, 0}))

	err := ix.Insert(chunk("b", 1), []float32{1, 0})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	_, err = ix.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	// Dimensionality is established by the first insert, not reset by
	// the failed one.
	assert.Equal(t, 3, ix.Dimension())
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_EmptyVector(t *testing.T) {
	ix := New("mock/test")
	err := ix.Insert(chunk("a", 0), nil)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestIndex_SearchEmpty(t *testing.T) {
	ix := New("mock/test")
	results, err := ix.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_KLargerThanIndex(t *testing.T) {
	ix := New("mock/test")
	require.NoError(t, ix.Insert(chunk("a", 0), []float32{1, 0}))
	require.NoError(t, ix.Insert(chunk("b", 1), []float32{0, 1}))

	results, err := ix.Search([]float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIndex_InvalidK(t *testing.T) {
	ix := New("mock/test")
	_, err := ix.Search([]float32{1}, 0)
	assert.Error(t, err)
}

func TestIndex_TiesKeepInsertionOrder(t *testing.T) {
	ix := New("mock/test")

	// Identical vectors score identically against any query.
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, ix.Insert(chunk(id, i), []float32{1, 1}))
	}

	results, err := ix.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("c%d", i), r.Chunk.ID)
	}
}

func TestIndex_Retrieve(t *testing.T) {
	ix := New("mock/test")
	require.NoError(t, ix.Insert(chunk("a", 0), []float32{1, 0}))

	got, err := ix.Retrieve("a")
	require.NoError(t, err)
	assert.Equal(t, "text a", got.Text)

	_, err = ix.Retrieve("missing")
	assert.ErrorIs(t, err, rag.ErrNotFound)
}

func TestIndex_Stats(t *testing.T) {
	ix := New("openai/text-embedding-3-small")
	require.NoError(t, ix.Insert(chunk("a", 0), []float32{1, 0, 0}))

	stats := ix.Stats()
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, "openai/text-embedding-3-small", stats.Identity)
}

func TestIndex_ConcurrentInsertAndSearch(t *testing.T) {
	ix := New("mock/test")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_ = ix.Insert(chunk(id, i), []float32{float32(i + 1), 1})
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ix.Search([]float32{1, 1}, 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, ix.Len())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
