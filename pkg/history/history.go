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

// Package history stores per-session conversation messages.
//
// Three backends cover the deployment spectrum: an in-memory store for
// single-process use, Redis for shared short-lived state, and SQL
// (postgres, mysql, sqlite) for durable history. All of them serve the
// same contract: append a message, read back the most recent N in
// chronological order.
package history

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists conversation history per session.
type Store interface {
	// AddMessage appends a message to the session.
	AddMessage(ctx context.Context, sessionID, role, content string) error

	// GetRecent returns up to n most recent messages in chronological
	// order, oldest first.
	GetRecent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error)

	// Close releases backend resources.
	Close() error
}
