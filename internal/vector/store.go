package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"akar-rag/internal/text"
)

// Store owns the served index. Readers take the current snapshot with
// Current and keep using it for the whole request; Rebuild and Reload swap
// the pointer only after the replacement is fully built.
type Store struct {
	dir     string
	current atomic.Pointer[Index]
	build   sync.Mutex
	loadMu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Rebuild embeds chunks, persists the result and swaps it in. Only one
// rebuild runs at a time; a second caller gets ErrBuildInProgress. On any
// error the previous index keeps serving.
func (s *Store) Rebuild(ctx context.Context, chunks []text.Chunk, e Embedder, batchSize int) (*Index, error) {
	if !s.build.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer s.build.Unlock()

	ix, err := Build(ctx, chunks, e, batchSize)
	if err != nil {
		return nil, err
	}
	if err := ix.Save(s.dir); err != nil {
		return nil, err
	}
	s.current.Store(ix)
	slog.InfoContext(ctx, "index swapped", "generation", ix.generation, "vectors", ix.Len(), "dimension", ix.dimension)
	return ix, nil
}

// Current returns the served index, loading it from disk on first use.
func (s *Store) Current(ctx context.Context) (*Index, error) {
	if ix := s.current.Load(); ix != nil {
		return ix, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if ix := s.current.Load(); ix != nil {
		return ix, nil
	}

	ix, err := Load(s.dir)
	if err != nil {
		return nil, err
	}
	// a concurrent Rebuild may have stored a newer index meanwhile
	if !s.current.CompareAndSwap(nil, ix) {
		return s.current.Load(), nil
	}
	slog.InfoContext(ctx, "index loaded", "generation", ix.generation, "vectors", ix.Len())
	return ix, nil
}

// Reload replaces the served index with what is on disk. Used when another
// process has rebuilt the shared storage directory.
func (s *Store) Reload(ctx context.Context) (*Index, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ix, err := Load(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reload index: %w", err)
	}
	s.current.Store(ix)
	slog.InfoContext(ctx, "index reloaded", "generation", ix.generation, "vectors", ix.Len())
	return ix, nil
}

// Generation is the id of the served index, or "" when none is loaded.
func (s *Store) Generation() string {
	if ix := s.current.Load(); ix != nil {
		return ix.generation
	}
	return ""
}
