package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"akar-rag/internal/middleware"
	"akar-rag/internal/vector"
)

type IndexReloader interface {
	Generation() string
	Reload(ctx context.Context) (*vector.Index, error)
}

// ReloadConsumer swaps in an index generation built by another replica
// sharing the same storage directory.
type ReloadConsumer struct {
	store IndexReloader
}

func NewReloadConsumer(s IndexReloader) *ReloadConsumer {
	return &ReloadConsumer{store: s}
}

func (c *ReloadConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event IndexRebuiltEvent
	if err := json.Unmarshal(m.Body, &event); err != nil {
		slog.Error("invalid index event payload", "error", err)
		return nil
	}

	correlationID := event.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if event.Generation == "" || event.Generation == c.store.Generation() {
		slog.DebugContext(ctx, "index event ignored", "generation", event.Generation)
		return nil
	}

	ix, err := c.store.Reload(ctx)
	if err != nil {
		// the files on disk may still be the previous generation; nothing to
		// retry until the writer finishes
		if errors.Is(err, vector.ErrIndexNotReady) {
			slog.WarnContext(ctx, "index event for missing index", "generation", event.Generation)
			return nil
		}
		slog.ErrorContext(ctx, "index reload failed", "generation", event.Generation, "error", err)
		return err
	}

	if ix.Generation() != event.Generation {
		slog.WarnContext(ctx, "reloaded generation differs from event", "event", event.Generation, "loaded", ix.Generation())
	}
	return nil
}
