// Package retrieval adapts a vector store and an embedding provider into a
// query-to-documents callable for retrieval nodes. The adapter embeds the
// query, searches with optional owner/document filters, drops low-score
// chunks, and maps the survivors to documents.
package retrieval

import (
	"context"
	"fmt"

	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/werrors"
)

// Chunk is one stored slice of an ingested document
type Chunk struct {
	DocumentID string
	ChunkIndex int
	Content    string
}

// Filter narrows a similarity search
type Filter struct {
	UserID      string
	DocumentIDs []string
}

// VectorStore is the similarity-search collaborator contract
type VectorStore interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error)
}

// ScoredChunk pairs a chunk with its similarity score
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// EmbeddingProvider turns text into a vector
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is the node-facing retrieval result
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// Retriever turns a natural-language query into relevant documents
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// Options configure an adapter
type Options struct {
	UserID         string
	DocumentIDs    []string
	CollectionName string
	K              int
	ScoreThreshold float64
}

// Adapter is the VectorStore+EmbeddingProvider backed Retriever
type Adapter struct {
	store    VectorStore
	embedder EmbeddingProvider
	opts     Options
	log      *logger.Logger
}

// New builds a retriever. A nil embedder yields a noop retriever so
// executions without a configured embedding service degrade gracefully.
func New(store VectorStore, embedder EmbeddingProvider, opts Options, log *logger.Logger) Retriever {
	if opts.K <= 0 {
		opts.K = 5
	}

	if embedder == nil || store == nil {
		log.Warn("no embedding provider configured, retrieval disabled",
			"collection", opts.CollectionName)
		return noopRetriever{}
	}

	return &Adapter{
		store:    store,
		embedder: embedder,
		opts:     opts,
		log:      log,
	}
}

// Retrieve embeds the query, searches, and filters by score threshold
func (a *Adapter) Retrieve(ctx context.Context, query string) ([]Document, error) {
	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindRetriever, fmt.Errorf("embed query: %w", err))
	}

	filter := Filter{
		UserID:      a.opts.UserID,
		DocumentIDs: a.opts.DocumentIDs,
	}

	scored, err := a.store.SearchSimilar(ctx, embedding, a.opts.K, filter)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindRetriever, fmt.Errorf("vector search: %w", err))
	}

	docs := make([]Document, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < a.opts.ScoreThreshold {
			continue
		}
		docs = append(docs, Document{
			PageContent: sc.Chunk.Content,
			Metadata: map[string]any{
				"document_id": sc.Chunk.DocumentID,
				"chunk_index": sc.Chunk.ChunkIndex,
				"score":       sc.Score,
			},
		})
	}

	a.log.Debug("retrieval complete",
		"query_len", len(query),
		"candidates", len(scored),
		"returned", len(docs),
		"threshold", a.opts.ScoreThreshold,
	)

	return docs, nil
}

type noopRetriever struct{}

func (noopRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return nil, nil
}
