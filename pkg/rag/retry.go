// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// retryableSubstrings matches transport failures that arrive as plain
// wrapped errors rather than typed provider or store errors.
var retryableSubstrings = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"service unavailable",
	"bad gateway",
}

// Retryer retries transient failures with exponential backoff.
// Delays are deterministic: base * 2^attempt, capped at the
// configured maximum. With the defaults (500ms base, 3 retries, 4s
// cap) the progression is 500ms, 1s, 2s.
type Retryer struct {
	config config.RetryConfig
}

// NewRetryer creates a retryer. Zero config fields get defaults.
func NewRetryer(cfg config.RetryConfig) *Retryer {
	cfg.SetDefaults()
	return &Retryer{config: cfg}
}

// Do executes fn, retrying retryable failures up to MaxRetries times.
// Returns nil on the first success, the error unchanged when it is
// not retryable, or a *RetryError once attempts are exhausted.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	_, err := DoWithResult(ctx, r, operation, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes an operation that returns a value, with the
// same retry semantics as Do.
func DoWithResult[T any](ctx context.Context, r *Retryer, operation string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			slog.Debug("Non-retryable error",
				"operation", operation,
				"error", err)
			return result, err
		}

		if attempt >= r.config.MaxRetries {
			slog.Warn("Max retries exceeded",
				"operation", operation,
				"attempts", attempt+1,
				"error", err)
			return result, &RetryError{
				Operation:   operation,
				Attempts:    attempt + 1,
				LastError:   err,
				IsExhausted: true,
			}
		}

		delay := r.calculateDelay(attempt, err)

		slog.Debug("Retrying operation",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", r.config.MaxRetries+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, lastErr
}

// isRetryable classifies an error. Typed errors decide directly;
// anything else falls back to substring matching.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryErr *RetryError
	if errors.As(err, &retryErr) && retryErr.IsExhausted {
		return false
	}

	var provErr *llms.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}

	var dimErr *vector.DimensionMismatchError
	if errors.As(err, &dimErr) {
		return false
	}

	var storeErr *vector.StoreError
	if errors.As(err, &storeErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryableSubstrings {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// calculateDelay computes base * 2^attempt capped at MaxDelay. A
// provider-announced Retry-After raises the delay when it is longer.
func (r *Retryer) calculateDelay(attempt int, err error) time.Duration {
	limit := time.Duration(r.config.MaxDelay)

	delay := time.Duration(r.config.BaseDelay) << attempt
	if delay > limit {
		delay = limit
	}

	var provErr *llms.ProviderError
	if errors.As(err, &provErr) && provErr.RetryAfter > delay {
		delay = provErr.RetryAfter
		if delay > limit {
			delay = limit
		}
	}

	return delay
}

// RetryError reports a failure that survived retrying.
type RetryError struct {
	Operation   string
	Attempts    int
	LastError   error
	IsExhausted bool
}

func (e *RetryError) Error() string {
	if e.IsExhausted {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastError)
	}
	return fmt.Sprintf("%s failed (attempt %d): %v", e.Operation, e.Attempts, e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// IsRetryExhausted reports whether err is a RetryError that ran out
// of attempts.
func IsRetryExhausted(err error) bool {
	var retryErr *RetryError
	return errors.As(err, &retryErr) && retryErr.IsExhausted
}
