package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

func testRetryConfig(maxAttempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Millisecond,
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	attempts, err := e.Execute(context.Background(), "op", testRetryConfig(3), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	calls := 0
	attempts, err := e.Execute(context.Background(), "op", testRetryConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return model.NewProviderError(model.ErrorKindNetwork, "connection reset", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	cause := model.NewProviderError(model.ErrorKindNetwork, "timeout", nil)
	attempts, err := e.Execute(context.Background(), "op", testRetryConfig(3), func(ctx context.Context) error {
		return cause
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("final error must wrap the cause, got %v", err)
	}
}

func TestExecuteDoesNotRetryValidationErrors(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	calls := 0
	attempts, err := e.Execute(context.Background(), "op", testRetryConfig(5), func(ctx context.Context) error {
		calls++
		return model.NewProviderError(model.ErrorKindValidation, "unknown timeframe", nil)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 || calls != 1 {
		t.Fatalf("validation errors must fail fast, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestExecuteDoesNotRetryAuthFailures(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	calls := 0
	_, err := e.Execute(context.Background(), "op", testRetryConfig(5), func(ctx context.Context) error {
		calls++
		return model.NewAPIError(401, "invalid api key")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("auth failures must fail fast, got %d calls", calls)
	}
}

func TestExecuteStopsOnContextCancel(t *testing.T) {
	e := NewRetryExecutor(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := e.Execute(ctx, "op", testRetryConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return model.NewProviderError(model.ErrorKindNetwork, "unreachable", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}
