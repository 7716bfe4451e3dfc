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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/vectra/pkg/config"
)

const historyKeyPrefix = "vectra:history:"

// RedisStore keeps per-session history in a Redis list, newest at the
// head. Each AddMessage trims the list so a session never holds more
// than maxMessages entries server-side.
type RedisStore struct {
	client *redis.Client
	max    int
}

// NewRedisStore connects to Redis. The connection is lazy; the first
// command surfaces connectivity problems.
func NewRedisStore(cfg config.RedisConfig, maxMessages int) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, max: maxMessages}
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, maxMessages int) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &RedisStore{client: client, max: maxMessages}
}

func historyKey(sessionID string) string {
	return historyKeyPrefix + sessionID
}

// AddMessage pushes the message and trims the window in one round trip.
func (s *RedisStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	payload, err := json.Marshal(ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetRecent reads the newest n entries and reverses them into
// chronological order.
func (s *RedisStore) GetRecent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > s.max {
		n = s.max
	}

	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// LRANGE returns newest first.
	msgs := make([]ChatMessage, len(raw))
	for i, item := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		msgs[len(raw)-1-i] = msg
	}
	return msgs, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
