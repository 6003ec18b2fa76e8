package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"akar-rag/internal/document"
	"akar-rag/internal/middleware"
	"akar-rag/internal/upstream"
	"akar-rag/internal/vector"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "ingest requested")

	res, err := h.service.Ingest(ctx)
	if err != nil {
		code, message, status := classify(err)
		var stage Stage
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		h.writeError(ctx, w, code, message, stage, status)
		return
	}

	slog.InfoContext(ctx, "ingest complete", "sections", res.Sections, "chunks", res.Chunks, "generation", res.Generation)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", "", http.StatusUnprocessableEntity)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.service.ListRuns(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list ingest runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to list ingest runs", "", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": runs,
		"meta": map[string]int{"count": len(runs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func classify(err error) (code, message string, status int) {
	switch {
	case errors.Is(err, vector.ErrBuildInProgress):
		return "BUILD_IN_PROGRESS", "An index build is already running. Try again when it finishes.", http.StatusConflict
	case errors.Is(err, document.ErrDocumentNotFound):
		return "DOCUMENT_NOT_FOUND", err.Error(), http.StatusNotFound
	case errors.Is(err, ErrNoSections), errors.Is(err, ErrNoChunks):
		return "NO_SECTIONS", "No sections detected in the document.", http.StatusUnprocessableEntity
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return "UPSTREAM_TIMEOUT", "The embedding provider timed out.", http.StatusGatewayTimeout
	case errors.Is(err, upstream.ErrEmbeddingFailure):
		return "UPSTREAM_ERROR", "The embedding provider failed.", http.StatusBadGateway
	case errors.Is(err, vector.ErrPersistence):
		return "PERSISTENCE_ERROR", "Failed to persist the index.", http.StatusInternalServerError
	case errors.Is(err, document.ErrExtraction):
		return "EXTRACTION_ERROR", "Failed to extract text from the document.", http.StatusInternalServerError
	default:
		return "INTERNAL_ERROR", "Ingest failed.", http.StatusInternalServerError
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, stage Stage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if stage != "" {
		resp["stage"] = stage
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
