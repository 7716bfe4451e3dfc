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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
)

func TestNewInMemoryKind(t *testing.T) {
	store, err := New(&config.MemoryConfig{Kind: config.MemoryInMemory, MaxMessages: 5})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)
}

func TestNewRelationalSqlite(t *testing.T) {
	store, err := New(&config.MemoryConfig{
		Kind:        config.MemoryRelational,
		MaxMessages: 5,
		Database: config.MemoryDatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLStore{}, store)

	ctx := context.Background()
	require.NoError(t, store.AddMessage(ctx, "s1", RoleUser, "hello"))
	msgs, err := store.GetRecent(ctx, "s1", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(&config.MemoryConfig{Kind: "cassandra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown memory kind")
}

func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
