package upstream_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"akar-rag/internal/upstream"
)

func TestCall(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		err := upstream.Call(context.Background(), time.Second, "embed", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok, "call context must carry a deadline")
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("Timeout", func(t *testing.T) {
		err := upstream.Call(context.Background(), 10*time.Millisecond, "embed", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, upstream.ErrUpstreamTimeout)
	})

	t.Run("Provider Error Passes Through", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		err := upstream.Call(context.Background(), time.Second, "generate", func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, upstream.ErrUpstreamTimeout)
	})

	t.Run("Caller Cancellation Is Not A Timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := upstream.Call(ctx, time.Second, "embed", func(ctx context.Context) error {
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, upstream.ErrUpstreamTimeout)
	})
}

func TestIsProviderFailure(t *testing.T) {
	assert.True(t, upstream.IsProviderFailure(fmt.Errorf("%w: x", upstream.ErrEmbeddingFailure)))
	assert.True(t, upstream.IsProviderFailure(fmt.Errorf("%w: x", upstream.ErrGenerationFailure)))
	assert.True(t, upstream.IsProviderFailure(fmt.Errorf("%w: x", upstream.ErrUpstreamTimeout)))
	assert.False(t, upstream.IsProviderFailure(errors.New("other")))
}
