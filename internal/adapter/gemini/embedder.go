package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"

	"akar-rag/internal/upstream"
)

type Embedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewEmbedder(client *genai.Client, model string, timeout time.Duration) *Embedder {
	return &Embedder{client: client, model: model, timeout: timeout}
}

// Embed embeds a single user question.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	var values []float32
	err := upstream.Call(ctx, e.timeout, "embed", func(ctx context.Context) error {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return fmt.Errorf("empty embedding returned")
		}
		values = res.Embedding.Values
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %w", upstream.ErrEmbeddingFailure, err)
	}
	return values, nil
}

// EmbedBatch embeds document chunks in one request and returns the vectors
// in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "size", len(texts))
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	var out [][]float32
	err := upstream.Call(ctx, e.timeout, "embed batch", func(ctx context.Context) error {
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return err
		}
		if len(res.Embeddings) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d texts", len(res.Embeddings), len(texts))
		}
		out = make([][]float32, len(texts))
		for i, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return fmt.Errorf("empty embedding at position %d", i)
			}
			out[i] = emb.Values
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err, "size", len(texts))
		return nil, fmt.Errorf("%w: %w", upstream.ErrEmbeddingFailure, err)
	}
	return out, nil
}
