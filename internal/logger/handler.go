package logger

import (
	"context"
	"io"
	"log/slog"

	"akar-rag/internal/middleware"
)

// ContextHandler decorates records with the request-scoped ids stored by the
// HTTP middleware.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id := middleware.GetClientID(ctx); id != "" {
		r.AddAttrs(slog.String("client_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// New builds the service logger: JSON records tagged with the service name.
func New(w io.Writer, service string) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(w, nil))).With("service", service)
}
