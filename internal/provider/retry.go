package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// RetryExecutor wraps provider calls with classify-then-retry semantics.
// Non-retryable errors (validation, configuration, authentication) fail
// immediately; everything else is retried with exponential backoff up to the
// profile's attempt budget.
type RetryExecutor struct {
	logger *zap.Logger
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(logger *zap.Logger) *RetryExecutor {
	return &RetryExecutor{logger: logger}
}

// Execute runs op until it succeeds, fails non-retryably, or exhausts the
// profile's attempts. It returns the number of attempts made and the final
// error, if any. Callers capture results in the closure.
func (e *RetryExecutor) Execute(ctx context.Context, name string, cfg config.RetryConfig, op func(context.Context) error) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.Multiplier = cfg.BackoffMultiplier
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retries",
					zap.String("operation", name),
					zap.Int("attempts", attempt))
			}
			return attempt, nil
		}

		kind := model.ClassifyError(lastErr)
		if !model.IsRetryable(lastErr) {
			e.logger.Error("Operation failed with non-retryable error",
				zap.String("operation", name),
				zap.String("errorKind", string(kind)),
				zap.Int("attempts", attempt),
				zap.Error(lastErr))
			return attempt, lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		e.logger.Warn("Operation failed, retrying after backoff",
			zap.String("operation", name),
			zap.String("errorKind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}

	e.logger.Error("Operation failed after exhausting retries",
		zap.String("operation", name),
		zap.Int("attempts", cfg.MaxAttempts),
		zap.Error(lastErr))
	return cfg.MaxAttempts, fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
