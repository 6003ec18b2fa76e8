package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"akar-rag/internal/middleware"
	"akar-rag/internal/retrieval"
	"akar-rag/internal/upstream"
	"akar-rag/internal/vector"
)

const maxBodyBytes = 64 << 10

type Answerer interface {
	Answer(ctx context.Context, question string) (*retrieval.Answer, error)
}

type Request struct {
	Question string `json:"question"`
}

type Handler struct {
	answerer          Answerer
	maxQuestionLength int
}

func NewHandler(a Answerer, maxQuestionLength int) *Handler {
	return &Handler{answerer: a, maxQuestionLength: maxQuestionLength}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Request body must be JSON with a question field", http.StatusUnprocessableEntity)
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "question must not be blank", http.StatusUnprocessableEntity)
		return
	}
	if utf8.RuneCountInString(question) > h.maxQuestionLength {
		h.writeError(ctx, w, "VALIDATION_ERROR", fmt.Sprintf("question must be at most %d characters", h.maxQuestionLength), http.StatusUnprocessableEntity)
		return
	}

	slog.InfoContext(ctx, "chat question", "length", len(question))

	answer, err := h.answerer.Answer(ctx, question)
	if err != nil {
		code, message, status := classify(err)
		slog.ErrorContext(ctx, "chat failed", "code", code, "error", err)
		h.writeError(ctx, w, code, message, status)
		return
	}

	slog.InfoContext(ctx, "chat answered", "confidence", answer.Confidence, "sources", len(answer.Sources))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(answer); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func classify(err error) (code, message string, status int) {
	switch {
	case errors.Is(err, vector.ErrIndexNotReady):
		return "INDEX_NOT_READY", "Knowledge base not initialised. Call POST /api/ingest first.", http.StatusServiceUnavailable
	case errors.Is(err, vector.ErrCorruptIndex):
		return "INDEX_CORRUPT", "Knowledge base is unreadable. Call POST /api/ingest to rebuild it.", http.StatusServiceUnavailable
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return "UPSTREAM_TIMEOUT", "The language model provider timed out.", http.StatusGatewayTimeout
	case upstream.IsProviderFailure(err):
		return "UPSTREAM_ERROR", "The language model provider failed.", http.StatusBadGateway
	default:
		return "INTERNAL_ERROR", "Failed to answer the question.", http.StatusInternalServerError
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
