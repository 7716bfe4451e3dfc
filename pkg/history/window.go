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

package history

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// Message format overhead per OpenAI's counting scheme:
// <|start|>role|message<|end|>, plus the assistant reply priming.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// TokenWindow trims recalled history to a token budget, keeping the
// most recent messages that fit. A zero budget disables trimming.
type TokenWindow struct {
	budget   int
	encoding *tiktoken.Tiktoken
}

// NewTokenWindow creates a window sized in tokens of the given model's
// encoding. Unknown models fall back to cl100k_base; if no encoding can
// be loaded at all, token counts are estimated at four characters each.
func NewTokenWindow(model string, budget int) *TokenWindow {
	w := &TokenWindow{budget: budget}
	if budget <= 0 {
		return w
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("No token encoding available, estimating counts",
			"model", model,
			"error", err)
		return w
	}
	w.encoding = encoding
	return w
}

// Budget returns the configured token budget.
func (w *TokenWindow) Budget() int {
	return w.budget
}

// Trim returns the longest suffix of messages that fits the budget.
// Messages stay in chronological order.
func (w *TokenWindow) Trim(messages []ChatMessage) []ChatMessage {
	if w.budget <= 0 || len(messages) == 0 {
		return messages
	}

	total := tokensPerReply
	keep := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := tokensPerMessage + w.count(messages[i].Role) + w.count(messages[i].Content)
		if total+cost > w.budget {
			break
		}
		total += cost
		keep = i
	}
	return messages[keep:]
}

func (w *TokenWindow) count(text string) int {
	if w.encoding == nil {
		// Rough estimation: 4 characters per token
		return len(text) / 4
	}
	return len(w.encoding.Encode(text, nil, nil))
}
