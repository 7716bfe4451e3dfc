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
	"database/sql"
	"fmt"

	"github.com/kadirpekel/vectra/pkg/config"
)

// New creates a history store for the configured memory kind.
func New(cfg *config.MemoryConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("memory configuration is required")
	}

	switch cfg.Kind {
	case config.MemoryInMemory:
		return NewInMemoryStore(cfg.MaxMessages), nil

	case config.MemoryKV:
		return NewRedisStore(cfg.Redis, cfg.MaxMessages), nil

	case config.MemoryRelational:
		driver := cfg.Database.Driver
		if driver == "sqlite" {
			driver = "sqlite3"
		}
		db, err := sql.Open(driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
		}
		store, err := NewSQLStore(db, cfg.Database.Driver)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown memory kind %q", cfg.Kind)
	}
}
