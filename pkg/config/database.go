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

import "regexp"

// Vector database types.
const (
	DatabaseChromem  = "chromem"
	DatabaseQdrant   = "qdrant"
	DatabasePinecone = "pinecone"
	DatabasePostgres = "postgres"
)

var validDatabaseTypes = map[string]bool{
	DatabaseChromem:  true,
	DatabaseQdrant:   true,
	DatabasePinecone: true,
	DatabasePostgres: true,
}

// sqlIdentifier guards table and column names that are interpolated
// into SQL statements. Anything else is rejected at validation.
var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnMap names the postgres table columns used by the vector store.
type ColumnMap struct {
	// ID is the primary key column (text).
	ID string `yaml:"id,omitempty"`

	// Content is the chunk text column (text).
	Content string `yaml:"content,omitempty"`

	// Embedding is the pgvector column.
	Embedding string `yaml:"embedding,omitempty"`

	// Metadata is the JSONB metadata column.
	Metadata string `yaml:"metadata,omitempty"`
}

// SetDefaults applies default values.
func (c *ColumnMap) SetDefaults() {
	if c.ID == "" {
		c.ID = "id"
	}
	if c.Content == "" {
		c.Content = "content"
	}
	if c.Embedding == "" {
		c.Embedding = "embedding"
	}
	if c.Metadata == "" {
		c.Metadata = "metadata"
	}
}

// Validate checks that every column name is a safe SQL identifier.
func (c *ColumnMap) Validate() error {
	for path, name := range map[string]string{
		"database.column_map.id":        c.ID,
		"database.column_map.content":   c.Content,
		"database.column_map.embedding": c.Embedding,
		"database.column_map.metadata":  c.Metadata,
	} {
		if !sqlIdentifier.MatchString(name) {
			return NewConfigError(path, "invalid identifier %q", name)
		}
	}
	return nil
}

// DatabaseConfig configures the vector store backend.
//
// Example YAML:
//
//	database:
//	  type: qdrant
//	  host: localhost
//	  port: 6334
//	  collection: documents
type DatabaseConfig struct {
	// Type selects the backend: chromem, qdrant, pinecone, postgres.
	Type string `yaml:"type,omitempty"`

	// Collection is the collection (qdrant, chromem) or index
	// (pinecone) name.
	Collection string `yaml:"collection,omitempty"`

	// PersistPath makes the chromem backend durable. Empty keeps it
	// in memory.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress gzip-compresses chromem persistence files.
	Compress bool `yaml:"compress,omitempty"`

	// Host and Port address a qdrant server.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// APIKey authenticates against qdrant or pinecone.
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS on the qdrant gRPC channel.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// Namespace scopes pinecone operations.
	Namespace string `yaml:"namespace,omitempty"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn,omitempty"`

	// TableName is the postgres table holding documents.
	TableName string `yaml:"table_name,omitempty"`

	// ColumnMap remaps the postgres column names.
	ColumnMap ColumnMap `yaml:"column_map,omitempty"`
}

// SetDefaults applies default values.
func (c *DatabaseConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = DatabaseChromem
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.Type == DatabaseQdrant {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
	if c.TableName == "" {
		c.TableName = "documents"
	}
	c.ColumnMap.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *DatabaseConfig) Validate() error {
	if !validDatabaseTypes[c.Type] {
		return NewConfigError("database.type", "invalid type %q (valid: chromem, qdrant, pinecone, postgres)", c.Type)
	}
	switch c.Type {
	case DatabaseQdrant:
		if c.Host == "" {
			return NewConfigError("database.host", "host is required for qdrant")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return NewConfigError("database.port", "port must be between 1 and 65535, got %d", c.Port)
		}
	case DatabasePinecone:
		if c.APIKey == "" {
			return NewConfigError("database.api_key", "api_key is required for pinecone")
		}
		if c.Collection == "" {
			return NewConfigError("database.collection", "collection (index name) is required for pinecone")
		}
	case DatabasePostgres:
		if c.DSN == "" {
			return NewConfigError("database.dsn", "dsn is required for postgres")
		}
		if !sqlIdentifier.MatchString(c.TableName) {
			return NewConfigError("database.table_name", "invalid identifier %q", c.TableName)
		}
		if err := c.ColumnMap.Validate(); err != nil {
			return err
		}
	}
	return nil
}
