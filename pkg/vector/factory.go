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

package vector

import (
	"fmt"

	"github.com/kadirpekel/vectra/pkg/config"
)

// New creates the configured store. dims is the embedding dimension
// when the embedding configuration pins one, 0 to let the store learn
// it from the first write.
func New(cfg *config.DatabaseConfig, dims int) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector: database configuration is required")
	}
	switch cfg.Type {
	case config.DatabaseChromem:
		return NewChromemStore(cfg, dims)
	case config.DatabaseQdrant:
		return NewQdrantStore(cfg, dims)
	case config.DatabasePinecone:
		return NewPineconeStore(cfg, dims)
	case config.DatabasePostgres:
		return NewPostgresStore(cfg, dims)
	default:
		return nil, fmt.Errorf("vector: unknown database type %q", cfg.Type)
	}
}
