package ingest

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
	List(ctx context.Context, limit int) ([]Run, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, run *Run) error {
	query := `INSERT INTO ingest_runs (status, correlation_id) VALUES ($1, $2) RETURNING id, started_at`
	return r.db.QueryRowContext(ctx, query, string(run.Status), run.CorrelationID).Scan(&run.ID, &run.StartedAt)
}

func (r *PostgresRepo) Finish(ctx context.Context, run *Run) error {
	query := `UPDATE ingest_runs SET status = $2, stage = $3, sections = $4, chunks = $5, generation = $6, error = $7, finished_at = NOW() WHERE id = $1 RETURNING finished_at`
	var finished time.Time
	err := r.db.QueryRowContext(ctx, query, run.ID, string(run.Status), string(run.Stage), run.Sections, run.Chunks, run.Generation, run.Error).Scan(&finished)
	if err != nil {
		return err
	}
	run.FinishedAt = &finished
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, status, stage, sections, chunks, generation, error, correlation_id, started_at, finished_at FROM ingest_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Status, &run.Stage, &run.Sections, &run.Chunks, &run.Generation, &run.Error, &run.CorrelationID, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MemoryRepo keeps the most recent runs in process. Used when no database is
// configured.
type MemoryRepo struct {
	mu   sync.Mutex
	runs []Run
	max  int
}

func NewMemoryRepo(max int) *MemoryRepo {
	if max <= 0 {
		max = 50
	}
	return &MemoryRepo{max: max}
}

func (r *MemoryRepo) Create(ctx context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run.ID = uuid.New().String()
	run.StartedAt = time.Now().UTC()
	r.runs = append(r.runs, *run)
	if len(r.runs) > r.max {
		r.runs = r.runs[len(r.runs)-r.max:]
	}
	return nil
}

func (r *MemoryRepo) Finish(ctx context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	run.FinishedAt = &now
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return sql.ErrNoRows
}

// List returns the newest runs first.
func (r *MemoryRepo) List(ctx context.Context, limit int) ([]Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Run, 0, min(limit, len(r.runs)))
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}
