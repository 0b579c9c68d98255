package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/werrors"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubStore struct {
	results    []ScoredChunk
	err        error
	lastFilter Filter
	lastK      int
}

func (s *stubStore) SearchSimilar(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error) {
	s.lastFilter = filter
	s.lastK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func TestRetrieve_MapsChunksAboveThreshold(t *testing.T) {
	store := &stubStore{
		results: []ScoredChunk{
			{Chunk: Chunk{DocumentID: "doc_1", ChunkIndex: 0, Content: "Python is a high-level language."}, Score: 0.89},
			{Chunk: Chunk{DocumentID: "doc_1", ChunkIndex: 1, Content: "noise"}, Score: 0.12},
		},
	}

	r := New(store, &stubEmbedder{}, Options{
		UserID:         "u1",
		DocumentIDs:    []string{"doc_1"},
		K:              4,
		ScoreThreshold: 0.5,
	}, testLogger())

	docs, err := r.Retrieve(context.Background(), "What is Python?")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "Python is a high-level language.", docs[0].PageContent)
	assert.Equal(t, "doc_1", docs[0].Metadata["document_id"])
	assert.Equal(t, 0, docs[0].Metadata["chunk_index"])
	assert.Equal(t, 0.89, docs[0].Metadata["score"])

	assert.Equal(t, 4, store.lastK)
	assert.Equal(t, "u1", store.lastFilter.UserID)
	assert.Equal(t, []string{"doc_1"}, store.lastFilter.DocumentIDs)
}

func TestRetrieve_ThresholdOneFiltersEverything(t *testing.T) {
	store := &stubStore{
		results: []ScoredChunk{
			{Chunk: Chunk{DocumentID: "d", Content: "a"}, Score: 0.99},
			{Chunk: Chunk{DocumentID: "d", Content: "b"}, Score: 0.97},
		},
	}

	r := New(store, &stubEmbedder{}, Options{K: 2, ScoreThreshold: 1.0}, testLogger())

	docs, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRetrieve_EmbedFailureIsRetrieverError(t *testing.T) {
	r := New(&stubStore{}, &stubEmbedder{err: fmt.Errorf("no embedding backend")}, Options{}, testLogger())

	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, werrors.Is(err, werrors.KindRetriever))
}

func TestRetrieve_SearchFailureIsRetrieverError(t *testing.T) {
	r := New(&stubStore{err: fmt.Errorf("index offline")}, &stubEmbedder{}, Options{}, testLogger())

	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, werrors.Is(err, werrors.KindRetriever))
}

func TestNew_NilEmbedderYieldsNoop(t *testing.T) {
	r := New(&stubStore{}, nil, Options{}, testLogger())

	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
