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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
)

// postJSON sends a JSON request and decodes the JSON response into out.
// Non-2xx statuses become ProviderErrors carrying the response body.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in, out any) error {
	resp, err := postRaw(ctx, client, provider, url, headers, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapTransportError(provider, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{
			Provider: provider,
			Message:  fmt.Sprintf("malformed response: %v", err),
			Err:      err,
		}
	}
	return nil
}

// postStream sends a JSON request and hands back the open response body
// for incremental reading. The caller owns closing it.
func postStream(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in any) (*http.Response, error) {
	return postRaw(ctx, client, provider, url, headers, in)
}

func postRaw(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in any) (*http.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, wrapTransportError(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newStatusError(provider, resp, respBody)
	}
	return resp, nil
}

// Normalize scales v to unit L2 length in place and returns it. Zero
// vectors pass through unchanged. Stored vectors are normalized so
// cosine similarity reduces to a dot product.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
