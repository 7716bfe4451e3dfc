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

package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotSupported marks capabilities a provider does not have, such as
// embeddings on anthropic. Check with errors.Is.
var ErrNotSupported = errors.New("operation not supported by provider")

// ProviderError describes a failed provider call.
//
// Retryable follows the HTTP status class: 408, 429 and 5xx are
// transient and worth retrying, other 4xx are not. Transport failures
// (connection refused, reset) are retryable with Status zero.
type ProviderError struct {
	Provider   string
	Status     int
	Message    string
	RetryAfter time.Duration
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	default:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// newStatusError builds a ProviderError from a non-2xx response. The
// message is taken from the provider's error envelope when the body
// parses as one, otherwise from the raw body.
func newStatusError(provider string, resp *http.Response, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}

	return &ProviderError{
		Provider:   provider,
		Status:     resp.StatusCode,
		Message:    msg,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Retryable:  retryableStatus(resp.StatusCode),
	}
}

// wrapTransportError classifies a transport-level failure. Context
// cancellation passes through untouched so callers can tell a user
// abort from a provider fault; everything else is a retryable
// ProviderError.
func wrapTransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: provider, Retryable: true, Err: err}
}

// notSupported returns the capability error for provider.
func notSupported(provider, what string) error {
	return &ProviderError{
		Provider: provider,
		Message:  what + " not supported",
		Err:      ErrNotSupported,
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

// parseRetryAfter reads a Retry-After header, which carries either
// delta-seconds or an HTTP date. Unparseable or past values yield zero.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
