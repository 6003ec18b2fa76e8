package ingest

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step an ingest failed in.
type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StagePersistence Stage = "persistence"
)

var (
	ErrNoSections = errors.New("no sections detected in document")
	ErrNoChunks   = errors.New("sections produced no chunks")
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest failed during %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Run is one recorded ingest attempt.
type Run struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	Stage         Stage      `json:"stage,omitempty"`
	Sections      int        `json:"sections"`
	Chunks        int        `json:"chunks"`
	Generation    string     `json:"generation,omitempty"`
	Error         string     `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}
