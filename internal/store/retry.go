package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/minipay/internal/apperr"
)

const retryBackoff = 25 * time.Millisecond

// retry runs attempt until it succeeds, fails with a non-retryable error, or
// maxRetries extra attempts have been spent.
func retry(ctx context.Context, maxRetries int, logger *slog.Logger, attempt func() error) error {
	for n := 0; ; n++ {
		err := attempt()
		if err == nil || !apperr.Retryable(err) || n >= maxRetries {
			return err
		}

		logger.Warn("retrying transaction", slog.Int("attempt", n+1), slog.Any("error", err))

		timer := time.NewTimer(time.Duration(n+1) * retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
