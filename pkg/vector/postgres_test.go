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
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
)

// The postgres tests exercise the SQL builders only; the statements
// never reach a server here.
func testPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Type: config.DatabasePostgres,
		DSN:  "postgres://localhost/vectra_test?sslmode=disable",
	}
	cfg.SetDefaults()
	store, err := NewPostgresStore(cfg, 3)
	require.NoError(t, err)
	return store
}

func TestPostgresUpsertSQL(t *testing.T) {
	store := testPostgresStore(t)
	stmt := store.upsertSQL()

	assert.Contains(t, stmt, `INSERT INTO "documents" ("id", "content", "embedding", "metadata")`)
	assert.Contains(t, stmt, `ON CONFLICT ("id") DO UPDATE`)
	assert.Contains(t, stmt, `"embedding" = EXCLUDED."embedding"`)
	assert.Contains(t, stmt, "$3::vector")
}

func TestPostgresSearchSQL(t *testing.T) {
	store := testPostgresStore(t)

	query, args, err := store.searchSQL([]float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, "[1,0,0]", args[0])
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, `ORDER BY "embedding" <=> $1::vector LIMIT 5`)
	assert.Contains(t, query, `1 - ("embedding" <=> $1::vector) AS score`)

	query, args, err = store.searchSQL([]float32{1, 0, 0}, 5, map[string]any{"docTitle": "guide.md"})
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Contains(t, query, `WHERE "metadata" @> $2::jsonb`)
	assert.JSONEq(t, `{"docTitle":"guide.md"}`, string(args[1].([]byte)))
}

func TestPostgresHybridSQL(t *testing.T) {
	store := testPostgresStore(t)

	query, args, err := store.hybridSQL("remote work", []float32{0, 1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "[0,1,0]", args[0])
	assert.Equal(t, "remote work", args[1])

	assert.Contains(t, query, "FULL OUTER JOIN lex ON vec.id = lex.id")
	assert.Contains(t, query, "1.0 / (60 + vec.rank)")
	assert.Contains(t, query, "1.0 / (60 + lex.rank)")
	assert.Contains(t, query, "plainto_tsquery('english', $2)")
	assert.Contains(t, query, "LIMIT 20", "each rank list draws a pool of 4k candidates")
	assert.Contains(t, query, "LIMIT 5")

	query, args, err = store.hybridSQL("remote work", []float32{0, 1, 0}, 5, map[string]any{"docTitle": "guide.md"})
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Contains(t, query, `WHERE "metadata" @> $3::jsonb`)
	assert.Contains(t, query, `AND "metadata" @> $3::jsonb`)
}

func TestPostgresCustomColumnMap(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Type:      config.DatabasePostgres,
		DSN:       "postgres://localhost/vectra_test?sslmode=disable",
		TableName: "chunks",
		ColumnMap: config.ColumnMap{ID: "doc_id", Content: "body", Embedding: "vec", Metadata: "extra"},
	}
	cfg.SetDefaults()
	store, err := NewPostgresStore(cfg, 3)
	require.NoError(t, err)

	stmt := store.upsertSQL()
	assert.Contains(t, stmt, `INSERT INTO "chunks" ("doc_id", "body", "vec", "extra")`)
	assert.Contains(t, stmt, `ON CONFLICT ("doc_id")`)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1.25,3]", vectorLiteral([]float32{0.5, -1.25, 3}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestTableMissing(t *testing.T) {
	assert.True(t, tableMissing(&pq.Error{Code: "42P01"}))
	assert.False(t, tableMissing(&pq.Error{Code: "23505"}))
	assert.False(t, tableMissing(errors.New("connection refused")))
	assert.False(t, tableMissing(nil))
}
