// Package vector is the local nearest-neighbour index over chunk embeddings.
//
// An Index is an immutable snapshot: vectors[i] is the embedding of
// chunks[i] and the two slices are never modified after Build or Load.
// Replacing the served generation is the job of Store.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"akar-rag/internal/text"
	"akar-rag/internal/upstream"
)

var (
	ErrIndexNotReady     = errors.New("index not ready")
	ErrCorruptIndex      = errors.New("corrupt index")
	ErrBuildInProgress   = errors.New("index build already in progress")
	ErrPersistence       = errors.New("index persistence failed")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

const DefaultBatchSize = 100

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Hit struct {
	Chunk text.Chunk
	Score float32
}

type Index struct {
	generation string
	dimension  int
	builtAt    time.Time
	vectors    [][]float32
	chunks     []text.Chunk
}

// Build embeds every chunk and returns a fresh index. Any embedding error
// aborts the whole build.
func Build(ctx context.Context, chunks []text.Chunk, e Embedder, batchSize int) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", ErrIndexNotReady)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		slog.InfoContext(ctx, "embedding batch", "from", start+1, "to", end, "total", len(chunks))
		batch, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: chunks %d-%d: %w", upstream.ErrEmbeddingFailure, start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: chunks %d-%d: got %d vectors for %d texts",
				upstream.ErrEmbeddingFailure, start, end-1, len(batch), len(texts))
		}

		for i, v := range batch {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, fmt.Errorf("%w: chunk %d: %w", upstream.ErrEmbeddingFailure, start+i, ErrDimensionMismatch)
			}
			n, ok := normalize(v)
			if !ok {
				return nil, fmt.Errorf("%w: chunk %d: zero vector", upstream.ErrEmbeddingFailure, start+i)
			}
			vectors = append(vectors, n)
		}
	}

	owned := make([]text.Chunk, len(chunks))
	copy(owned, chunks)
	for i := range owned {
		owned[i].ID = i
	}

	return &Index{
		generation: uuid.New().String(),
		dimension:  dim,
		builtAt:    time.Now().UTC(),
		vectors:    vectors,
		chunks:     owned,
	}, nil
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.vectors)
}

func (ix *Index) Generation() string { return ix.generation }
func (ix *Index) Dimension() int     { return ix.dimension }
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Chunks returns a copy of the chunk metadata in index order.
func (ix *Index) Chunks() []text.Chunk {
	out := make([]text.Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// Search returns the k chunks most similar to query by cosine similarity,
// highest first. k is clamped to the index size.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if ix.Len() == 0 {
		return nil, ErrIndexNotReady
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), ix.dimension)
	}
	q, ok := normalize(query)
	if !ok {
		return nil, fmt.Errorf("%w: zero query vector", ErrDimensionMismatch)
	}
	if k <= 0 {
		k = 1
	}
	k = min(k, len(ix.vectors))

	hits := make([]Hit, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = Hit{Chunk: ix.chunks[i], Score: dot(q, v)}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return hits[:k], nil
}

func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
