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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/llms"
	"github.com/kadirpekel/vectra/pkg/vector"
)

func fastRetryer(maxRetries int) *Retryer {
	return NewRetryer(config.RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  config.Duration(time.Millisecond),
		MaxDelay:   config.Duration(4 * time.Millisecond),
	})
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := fastRetryer(3)

	calls := 0
	err := r.Do(context.Background(), "flaky op", func() error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryNonRetryableReturnsUnchanged(t *testing.T) {
	r := fastRetryer(3)

	sentinel := errors.New("invalid input")
	calls := 0
	err := r.Do(context.Background(), "bad op", func() error {
		calls++
		return sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhausted(t *testing.T) {
	r := fastRetryer(3)

	underlying := errors.New("request timeout")
	calls := 0
	err := r.Do(context.Background(), "doomed op", func() error {
		calls++
		return underlying
	})

	// Initial attempt plus three retries.
	assert.Equal(t, 4, calls)
	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	assert.ErrorIs(t, err, underlying)

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, "doomed op", retryErr.Operation)
	assert.Equal(t, 4, retryErr.Attempts)
}

func TestDoWithResult(t *testing.T) {
	r := fastRetryer(3)

	calls := 0
	got, err := DoWithResult(context.Background(), r, "fetch", func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("service unavailable")
		}
		return "hello", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 2, calls)
}

func TestRetryCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetryer(3).Do(ctx, "op", func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	r := NewRetryer(config.RetryConfig{
		MaxRetries: 3,
		BaseDelay:  config.Duration(time.Hour),
		MaxDelay:   config.Duration(time.Hour),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, "op", func() error {
		return errors.New("rate limit hit")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"exhausted retry", &RetryError{IsExhausted: true, LastError: errors.New("x")}, false},
		{"provider retryable", &llms.ProviderError{Provider: "openai", Status: 429, Retryable: true}, true},
		{"provider permanent", &llms.ProviderError{Provider: "openai", Status: 401}, false},
		{"store error", &vector.StoreError{Store: "qdrant", Op: "upsert", Err: errors.New("x")}, true},
		{"dimension mismatch", &vector.DimensionMismatchError{Store: "qdrant", Want: 768, Got: 384}, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:6334: connection refused"), true},
		{"timeout text", errors.New("request Timeout exceeded"), true},
		{"too many requests", errors.New("429 Too Many Requests"), true},
		{"plain failure", errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	r := NewRetryer(config.RetryConfig{})
	plain := errors.New("timeout")

	assert.Equal(t, 500*time.Millisecond, r.calculateDelay(0, plain))
	assert.Equal(t, time.Second, r.calculateDelay(1, plain))
	assert.Equal(t, 2*time.Second, r.calculateDelay(2, plain))
	assert.Equal(t, 4*time.Second, r.calculateDelay(3, plain))
	// Past the cap the delay stays flat.
	assert.Equal(t, 4*time.Second, r.calculateDelay(10, plain))
}

func TestCalculateDelayHonorsRetryAfter(t *testing.T) {
	r := NewRetryer(config.RetryConfig{})

	slow := &llms.ProviderError{Retryable: true, RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, r.calculateDelay(0, slow))

	// Retry-After beyond the cap is clamped.
	huge := &llms.ProviderError{Retryable: true, RetryAfter: time.Minute}
	assert.Equal(t, 4*time.Second, r.calculateDelay(0, huge))

	// A Retry-After shorter than the computed backoff is ignored.
	quick := &llms.ProviderError{Retryable: true, RetryAfter: 100 * time.Millisecond}
	assert.Equal(t, time.Second, r.calculateDelay(1, quick))
}

func TestRetryErrorMessage(t *testing.T) {
	err := &RetryError{Operation: "embed batch", Attempts: 4, LastError: errors.New("boom"), IsExhausted: true}
	assert.Equal(t, "embed batch failed after 4 attempts: boom", err.Error())
	assert.False(t, IsRetryExhausted(errors.New("other")))
}
