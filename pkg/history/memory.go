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
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps a bounded trailing window of messages per session.
// Safe for concurrent use. History is lost on process exit.
type InMemoryStore struct {
	mu       sync.RWMutex
	max      int
	sessions map[string][]ChatMessage
}

// NewInMemoryStore creates a store keeping at most maxMessages per session.
func NewInMemoryStore(maxMessages int) *InMemoryStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &InMemoryStore{
		max:      maxMessages,
		sessions: make(map[string][]ChatMessage),
	}
}

// AddMessage appends a message, dropping the oldest once the window is full.
func (s *InMemoryStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.sessions[sessionID], ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if len(msgs) > s.max {
		// Reslice into a fresh array so dropped messages get collected.
		trimmed := make([]ChatMessage, s.max)
		copy(trimmed, msgs[len(msgs)-s.max:])
		msgs = trimmed
	}
	s.sessions[sessionID] = msgs
	return nil
}

// GetRecent returns up to n most recent messages, oldest first.
func (s *InMemoryStore) GetRecent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	if n > len(msgs) {
		n = len(msgs)
	}

	out := make([]ChatMessage, n)
	copy(out, msgs[len(msgs)-n:])
	return out, nil
}

// Clear removes all messages for a session.
func (s *InMemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

var _ Store = (*InMemoryStore)(nil)
