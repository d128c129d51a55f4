package controls

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
)

// RetryConfig controls the exponential-backoff schedule applied between
// attempts of a single operation dispatch.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Base        float64
}

// DefaultRetryConfig mirrors the original system's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		InitialWait: time.Second,
		MaxWait:     30 * time.Second,
		Base:        2.0,
	}
}

// Retryable is anything the retry handler can decide to retry: an HTTP
// status it observed, or an apierrors.StructuredError it caught.
type Retryable struct {
	HTTPStatus int
	Err        error
}

// backoff computes the delay before the given attempt (0-indexed), applying
// exponential growth capped at MaxWait plus or minus up to 10% jitter.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	raw := float64(cfg.InitialWait) * pow(cfg.Base, attempt)
	if raw > float64(cfg.MaxWait) {
		raw = float64(cfg.MaxWait)
	}
	jitter := raw * 0.1 * (2*rand.Float64() - 1)
	return time.Duration(raw + jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// IsRetryable reports whether r should be retried: a retryable HTTP status,
// or a recoverable structured error in the Network/ApiError/Execution
// categories.
func IsRetryable(r Retryable) bool {
	if r.HTTPStatus != 0 {
		return apierrors.IsRetryableHTTPStatus(r.HTTPStatus)
	}
	var structured *apierrors.StructuredError
	if errors.As(r.Err, &structured) {
		if structured.HTTPStatus != 0 {
			return apierrors.IsRetryableHTTPStatus(structured.HTTPStatus)
		}
		switch structured.Category {
		case apierrors.CategoryNetwork, apierrors.CategoryAPIError, apierrors.CategoryExecution:
			return structured.Recoverable
		}
	}
	return false
}

// Retrier runs an operation with bounded exponential-backoff retries.
type Retrier struct {
	config RetryConfig
}

// NewRetrier builds a Retrier with the given config.
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{config: config}
}

// Do runs fn up to config.MaxRetries+1 times total, sleeping a jittered
// exponential backoff between tries. fn reports retryability via the
// returned Retryable (HTTPStatus/Err); Do stops immediately on a nil error,
// a non-retryable failure, or context cancellation.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) (Retryable, error)) error {
	var lastErr error
	totalAttempts := r.config.MaxRetries + 1

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		retryable, err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(retryable) {
			return err
		}
		if attempt == totalAttempts-1 {
			break
		}

		wait := backoff(r.config, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
