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

package config

// Memory backend kinds.
const (
	MemoryInMemory   = "in-memory"
	MemoryKV         = "kv"
	MemoryRelational = "relational"
)

var validMemoryKinds = map[string]bool{
	MemoryInMemory:   true,
	MemoryKV:         true,
	MemoryRelational: true,
}

// SQL drivers accepted by the relational memory backend.
var validMemoryDrivers = map[string]bool{
	"postgres": true,
	"mysql":    true,
	"sqlite":   true,
}

// MemoryConfig controls conversation history.
type MemoryConfig struct {
	// Enabled turns conversational memory on. Without it every query is
	// answered stateless.
	Enabled bool `yaml:"enabled,omitempty"`

	// Kind selects the backend: "in-memory", "kv" (Redis), or
	// "relational" (SQL).
	Kind string `yaml:"kind,omitempty"`

	// MaxMessages bounds the trailing window kept per session.
	MaxMessages int `yaml:"max_messages,omitempty"`

	// TokenBudget optionally trims recalled history to a token count
	// before it is injected into the prompt. Zero disables trimming.
	TokenBudget int `yaml:"token_budget,omitempty"`

	// Redis configures the kv backend.
	Redis RedisConfig `yaml:"redis,omitempty"`

	// Database configures the relational backend.
	Database MemoryDatabaseConfig `yaml:"database,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr,omitempty"`

	// Password authenticates against the server.
	Password string `yaml:"password,omitempty"`

	// DB is the logical database number.
	DB int `yaml:"db,omitempty"`
}

// MemoryDatabaseConfig holds SQL connection settings for history.
type MemoryDatabaseConfig struct {
	// Driver is "postgres", "mysql" or "sqlite".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values.
func (c *MemoryConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = MemoryInMemory
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = 20
	}
	if c.Kind == MemoryKV && c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// Validate checks the configuration for errors.
func (c *MemoryConfig) Validate() error {
	if !validMemoryKinds[c.Kind] {
		return NewConfigError("memory.kind", "invalid kind %q (valid: in-memory, kv, relational)", c.Kind)
	}
	if c.MaxMessages <= 0 {
		return NewConfigError("memory.max_messages", "max_messages must be positive, got %d", c.MaxMessages)
	}
	if c.TokenBudget < 0 {
		return NewConfigError("memory.token_budget", "token_budget must be non-negative, got %d", c.TokenBudget)
	}
	if !c.Enabled {
		return nil
	}
	switch c.Kind {
	case MemoryKV:
		if c.Redis.Addr == "" {
			return NewConfigError("memory.redis.addr", "addr is required for kv memory")
		}
	case MemoryRelational:
		if !validMemoryDrivers[c.Database.Driver] {
			return NewConfigError("memory.database.driver", "invalid driver %q (valid: postgres, mysql, sqlite)", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return NewConfigError("memory.database.dsn", "dsn is required for relational memory")
		}
	}
	return nil
}
