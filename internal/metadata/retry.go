package metadata

import (
	"context"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
)

// retryOnce calls fn at most twice, logging each failure.
func retryOnce[T any](ctx context.Context, what string, fn func(context.Context) (T, error)) (T, error) {
	var (
		val T
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		logger.Warn("Fetching %s failed (attempt %d/2): %v", what, attempt, err)
		if ctx.Err() != nil {
			break
		}
	}
	return val, err
}
