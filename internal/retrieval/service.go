// Package retrieval answers questions against the served index: it embeds
// the question, searches, classifies confidence, picks sources and asks the
// generator for a grounded answer.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"akar-rag/internal/middleware"
	"akar-rag/internal/upstream"
	"akar-rag/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// IndexSource hands out the index snapshot a query runs against.
type IndexSource interface {
	Current(ctx context.Context) (*vector.Index, error)
}

type Options struct {
	TopK          int
	Policy        Policy
	MaxSources    int
	SnippetLength int
}

func DefaultOptions() Options {
	return Options{TopK: 6, Policy: DefaultPolicy(), MaxSources: 3, SnippetLength: 200}
}

type Answer struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Confidence Confidence `json:"confidence"`
}

type Service struct {
	embedder  Embedder
	index     IndexSource
	generator Generator
	opts      Options
	logger    *QueryLogger
}

func NewService(e Embedder, ix IndexSource, g Generator, opts Options, l *QueryLogger) *Service {
	return &Service{embedder: e, index: ix, generator: g, opts: opts, logger: l}
}

func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()

	// no provider call is made until an index is known to exist
	ix, err := s.index.Current(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: question: %w", upstream.ErrEmbeddingFailure, err)
	}

	hits, err := ix.Search(vec, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	scores := make([]float32, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	confidence := s.opts.Policy.Classify(scores)
	sources := SelectSources(hits, s.opts.MaxSources, s.opts.SnippetLength)
	slog.InfoContext(ctx, "retrieved chunks", "count", len(hits), "top_score", scores[0], "confidence", confidence)

	prompt := BuildPrompt(question, hits)
	text, err := s.generator.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", upstream.ErrGenerationFailure, err)
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Question:      question,
			Confidence:    confidence,
			TopScore:      scores[0],
			NumChunks:     len(hits),
			NumSources:    len(sources),
			Generation:    ix.Generation(),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}

	return &Answer{Answer: text, Sources: sources, Confidence: confidence}, nil
}
