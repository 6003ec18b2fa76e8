// Package upstream holds the failure taxonomy and call policy for the
// externally billed providers (embedding and answer generation).
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmbeddingFailure  = errors.New("embedding provider failure")
	ErrGenerationFailure = errors.New("generation provider failure")
	ErrUpstreamTimeout   = errors.New("upstream call timed out")
)

// Call runs fn under a deadline of timeout. A deadline that expires during
// the call is reported as ErrUpstreamTimeout; cancellation by the caller is
// returned as is.
func Call(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s after %s", ErrUpstreamTimeout, op, timeout)
	}
	return err
}

// IsProviderFailure reports whether err came from an external provider.
func IsProviderFailure(err error) bool {
	return errors.Is(err, ErrEmbeddingFailure) ||
		errors.Is(err, ErrGenerationFailure) ||
		errors.Is(err, ErrUpstreamTimeout)
}
