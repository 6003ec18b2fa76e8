package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"akar-rag/internal/config"
	"akar-rag/internal/document"
	"akar-rag/internal/middleware"
	"akar-rag/internal/text"
	"akar-rag/internal/vector"
	"akar-rag/internal/worker"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type IndexBuilder interface {
	Rebuild(ctx context.Context, chunks []text.Chunk, e vector.Embedder, batchSize int) (*vector.Index, error)
}

type Result struct {
	Status     string `json:"status"`
	Sections   int    `json:"sections"`
	Chunks     int    `json:"chunks"`
	Generation string `json:"generation"`
	RunID      string `json:"run_id,omitempty"`
}

type Service struct {
	extractor document.Extractor
	chunker   *text.Chunker
	embedder  vector.Embedder
	batchSize int
	index     IndexBuilder
	repo      Repository
	pub       EventPublisher

	mu sync.Mutex
}

// NewService wires the ingest pipeline. pub may be nil.
func NewService(ex document.Extractor, ch *text.Chunker, e vector.Embedder, batchSize int, ix IndexBuilder, repo Repository, pub EventPublisher) *Service {
	return &Service{extractor: ex, chunker: ch, embedder: e, batchSize: batchSize, index: ix, repo: repo, pub: pub}
}

// Ingest rebuilds the index from the source document. A second call while one
// is running fails with vector.ErrBuildInProgress. On failure the previously
// served index stays in place and the error is a *StageError.
func (s *Service) Ingest(ctx context.Context) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, vector.ErrBuildInProgress
	}
	defer s.mu.Unlock()

	run := &Run{Status: StatusRunning, CorrelationID: middleware.GetCorrelationID(ctx)}
	if err := s.repo.Create(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to record ingest run", "error", err)
	}

	res, err := s.ingest(ctx, run)
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			run.Stage = se.Stage
		}
		slog.ErrorContext(ctx, "ingest failed", "stage", run.Stage, "error", err)
	} else {
		run.Status = StatusSucceeded
	}

	if run.ID != "" {
		if ferr := s.repo.Finish(ctx, run); ferr != nil {
			slog.WarnContext(ctx, "failed to finish ingest run", "run_id", run.ID, "error", ferr)
		}
	}
	if err != nil {
		return nil, err
	}
	res.RunID = run.ID
	return res, nil
}

func (s *Service) ingest(ctx context.Context, run *Run) (*Result, error) {
	sections, err := s.extractor.Extract(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageExtraction, Err: err}
	}
	if len(sections) == 0 {
		return nil, &StageError{Stage: StageExtraction, Err: ErrNoSections}
	}
	run.Sections = len(sections)
	slog.InfoContext(ctx, "sections extracted", "count", len(sections))

	chunks := s.chunker.Split(sections)
	if len(chunks) == 0 {
		return nil, &StageError{Stage: StageChunking, Err: ErrNoChunks}
	}
	run.Chunks = len(chunks)
	slog.InfoContext(ctx, "sections chunked", "chunks", len(chunks), "size", s.chunker.Size(), "overlap", s.chunker.Overlap())

	ix, err := s.index.Rebuild(ctx, chunks, s.embedder, s.batchSize)
	if err != nil {
		switch {
		case errors.Is(err, vector.ErrBuildInProgress):
			return nil, err
		case errors.Is(err, vector.ErrPersistence):
			return nil, &StageError{Stage: StagePersistence, Err: err}
		default:
			return nil, &StageError{Stage: StageEmbedding, Err: err}
		}
	}
	run.Generation = ix.Generation()

	s.publish(ctx, worker.IndexRebuiltEvent{
		Generation:    ix.Generation(),
		Sections:      len(sections),
		Chunks:        len(chunks),
		BuiltAt:       ix.BuiltAt(),
		CorrelationID: run.CorrelationID,
	})

	return &Result{
		Status:     "success",
		Sections:   len(sections),
		Chunks:     len(chunks),
		Generation: ix.Generation(),
	}, nil
}

// publish is best effort: the index is already served locally.
func (s *Service) publish(ctx context.Context, event worker.IndexRebuiltEvent) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal index event", "error", err)
		return
	}
	if err := s.pub.Publish(config.TopicIndexRebuilt, body); err != nil {
		slog.WarnContext(ctx, "failed to publish index event", "generation", event.Generation, "error", err)
	}
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.repo.List(ctx, limit)
}
