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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/kadirpekel/vectra/pkg/config"
)

// PostgresStore keeps documents in a postgres table with a pgvector
// embedding column and a JSONB metadata column. Table and column
// names come from the column map, validated as identifiers at config
// load. It is the only backend with native hybrid search and listing.
type PostgresStore struct {
	db    *sql.DB
	table string
	cols  config.ColumnMap
	guard *dimGuard

	mu    sync.Mutex
	ready bool
}

// NewPostgresStore opens a connection pool against the configured
// DSN. The pool is lazy; a bad DSN surfaces on first use.
func NewPostgresStore(cfg *config.DatabaseConfig, dims int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &PostgresStore{
		db:    db,
		table: cfg.TableName,
		cols:  cfg.ColumnMap,
		guard: newDimGuard("postgres", dims),
	}, nil
}

func (s *PostgresStore) qTable() string   { return pq.QuoteIdentifier(s.table) }
func (s *PostgresStore) qID() string      { return pq.QuoteIdentifier(s.cols.ID) }
func (s *PostgresStore) qContent() string { return pq.QuoteIdentifier(s.cols.Content) }
func (s *PostgresStore) qEmbed() string   { return pq.QuoteIdentifier(s.cols.Embedding) }
func (s *PostgresStore) qMeta() string    { return pq.QuoteIdentifier(s.cols.Metadata) }

// ensureTable creates the table once the embedding dimension is
// known. The pgvector extension may need privileges we do not have;
// when it is missing the table creation reports the real problem.
func (s *PostgresStore) ensureTable(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	_, _ = s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")

	create := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s text PRIMARY KEY, %s text NOT NULL, %s vector(%d) NOT NULL, %s jsonb NOT NULL DEFAULT '{}'::jsonb)",
		s.qTable(), s.qID(), s.qContent(), s.qEmbed(), dim, s.qMeta(),
	)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.ready = true
	return nil
}

// AddDocuments upserts documents in a single transaction. The
// deterministic chunk IDs make insert and upsert equivalent, so
// re-ingesting a file never duplicates rows.
func (s *PostgresStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.guard.check(docs); err != nil {
		return storeErr("postgres", "add", err)
	}
	if err := s.ensureTable(ctx, s.guard.dim()); err != nil {
		return storeErr("postgres", "add", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("postgres", "add", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
	if err != nil {
		return storeErr("postgres", "add", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, doc := range docs {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return storeErr("postgres", "add", fmt.Errorf("marshal metadata for %q: %w", doc.ID, err))
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, vectorLiteral(doc.Embedding), metadata); err != nil {
			return storeErr("postgres", "add", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("postgres", "add", err)
	}
	return nil
}

// UpsertDocuments is identical to AddDocuments.
func (s *PostgresStore) UpsertDocuments(ctx context.Context, docs []Document) error {
	return s.AddDocuments(ctx, docs)
}

func (s *PostgresStore) upsertSQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3::vector, $4::jsonb) "+
			"ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = EXCLUDED.%s",
		s.qTable(), s.qID(), s.qContent(), s.qEmbed(), s.qMeta(),
		s.qID(),
		s.qContent(), s.qContent(), s.qEmbed(), s.qEmbed(), s.qMeta(), s.qMeta(),
	)
}

// SimilaritySearch ranks by cosine distance. Filters use JSONB
// containment so the GIN metadata index applies.
func (s *PostgresStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	query, args, err := s.searchSQL(vector, k, filter)
	if err != nil {
		return nil, storeErr("postgres", "search", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if tableMissing(err) {
			return nil, nil
		}
		return nil, storeErr("postgres", "search", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

func (s *PostgresStore) searchSQL(vector []float32, k int, filter map[string]any) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b,
		"SELECT %s, %s, %s, 1 - (%s <=> $1::vector) AS score FROM %s",
		s.qID(), s.qContent(), s.qMeta(), s.qEmbed(), s.qTable(),
	)
	args := []any{vectorLiteral(vector)}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return "", nil, fmt.Errorf("marshal filter: %w", err)
		}
		fmt.Fprintf(&b, " WHERE %s @> $2::jsonb", s.qMeta())
		args = append(args, filterJSON)
	}
	fmt.Fprintf(&b, " ORDER BY %s <=> $1::vector LIMIT %d", s.qEmbed(), k)
	return b.String(), args, nil
}

// HybridSearch fuses a lexical tsvector ranking with the vector
// ranking using reciprocal rank fusion, all server side. Each list
// contributes 1/(60 + rank) with 1-based ranks.
func (s *PostgresStore) HybridSearch(ctx context.Context, query string, vector []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	sqlText, args, err := s.hybridSQL(query, vector, k, filter)
	if err != nil {
		return nil, storeErr("postgres", "hybrid search", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		if tableMissing(err) {
			return nil, nil
		}
		return nil, storeErr("postgres", "hybrid search", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

func (s *PostgresStore) hybridSQL(query string, vector []float32, k int, filter map[string]any) (string, []any, error) {
	// Each rank list draws from a wider candidate pool than k so
	// fusion has something to reorder.
	pool := k * 4

	args := []any{vectorLiteral(vector), query}
	where := ""
	lexWhere := fmt.Sprintf("WHERE to_tsvector('english', %s) @@ plainto_tsquery('english', $2)", s.qContent())
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return "", nil, fmt.Errorf("marshal filter: %w", err)
		}
		args = append(args, filterJSON)
		where = fmt.Sprintf("WHERE %s @> $3::jsonb", s.qMeta())
		lexWhere += fmt.Sprintf(" AND %s @> $3::jsonb", s.qMeta())
	}

	sqlText := fmt.Sprintf(`WITH vec AS (
	SELECT %[1]s AS id, row_number() OVER (ORDER BY %[2]s <=> $1::vector) AS rank
	FROM %[3]s %[6]s ORDER BY %[2]s <=> $1::vector LIMIT %[8]d
), lex AS (
	SELECT %[1]s AS id, row_number() OVER (ORDER BY ts_rank_cd(to_tsvector('english', %[4]s), plainto_tsquery('english', $2)) DESC) AS rank
	FROM %[3]s %[7]s ORDER BY ts_rank_cd(to_tsvector('english', %[4]s), plainto_tsquery('english', $2)) DESC LIMIT %[8]d
), fused AS (
	SELECT COALESCE(vec.id, lex.id) AS id,
		COALESCE(1.0 / (60 + vec.rank), 0) + COALESCE(1.0 / (60 + lex.rank), 0) AS score
	FROM vec FULL OUTER JOIN lex ON vec.id = lex.id
)
SELECT d.%[1]s, d.%[4]s, d.%[5]s, fused.score
FROM fused JOIN %[3]s d ON d.%[1]s = fused.id
ORDER BY fused.score DESC, d.%[1]s
LIMIT %[9]d`,
		s.qID(), s.qEmbed(), s.qTable(), s.qContent(), s.qMeta(),
		where, lexWhere, pool, k,
	)
	return sqlText, args, nil
}

// FileExists checks for any row carrying this exact file fingerprint.
func (s *PostgresStore) FileExists(ctx context.Context, sha256 string, size int64, modTime time.Time) (bool, error) {
	fingerprint, err := json.Marshal(map[string]string{
		MetaFileSHA256:   sha256,
		MetaFileSize:     sizeString(size),
		MetaLastModified: modTimeString(modTime),
	})
	if err != nil {
		return false, storeErr("postgres", "file check", err)
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s @> $1::jsonb)", s.qTable(), s.qMeta())

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, fingerprint).Scan(&exists); err != nil {
		if tableMissing(err) {
			return false, nil
		}
		return false, storeErr("postgres", "file check", err)
	}
	return exists, nil
}

// ListDocuments pages through stored rows in ID order.
func (s *PostgresStore) ListDocuments(ctx context.Context, opts ListOptions) ([]Document, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s, %s FROM %s", s.qID(), s.qContent(), s.qMeta(), s.qTable())
	var args []any
	if len(opts.Filter) > 0 {
		filterJSON, err := json.Marshal(opts.Filter)
		if err != nil {
			return nil, storeErr("postgres", "list", fmt.Errorf("marshal filter: %w", err))
		}
		fmt.Fprintf(&b, " WHERE %s @> $1::jsonb", s.qMeta())
		args = append(args, filterJSON)
	}
	fmt.Fprintf(&b, " ORDER BY %s", s.qID())
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		if tableMissing(err) {
			return nil, nil
		}
		return nil, storeErr("postgres", "list", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storeErr("postgres", "list", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("postgres", "list", err)
	}
	return docs, nil
}

// DeleteByID removes rows by ID.
func (s *PostgresStore) DeleteByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", s.qTable(), s.qID())
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		if tableMissing(err) {
			return nil
		}
		return storeErr("postgres", "delete", err)
	}
	return nil
}

// DeleteByFilter removes all rows matching the filter.
func (s *PostgresStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return nil
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return storeErr("postgres", "delete", fmt.Errorf("marshal filter: %w", err))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s @> $1::jsonb", s.qTable(), s.qMeta())
	if _, err := s.db.ExecContext(ctx, query, filterJSON); err != nil {
		if tableMissing(err) {
			return nil
		}
		return storeErr("postgres", "delete", err)
	}
	return nil
}

// EnsureIndexes creates the table, the ivfflat embedding index, and
// the GIN indexes for metadata containment and lexical search. With
// no configured dimension and no prior write the table cannot exist
// yet, so there is nothing to index.
func (s *PostgresStore) EnsureIndexes(ctx context.Context) error {
	dim := s.guard.dim()
	if dim == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, dim); err != nil {
		return storeErr("postgres", "ensure indexes", err)
	}

	for _, stmt := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (%s vector_cosine_ops) WITH (lists = 100)",
			pq.QuoteIdentifier(s.table+"_"+s.cols.Embedding+"_idx"), s.qTable(), s.qEmbed()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)",
			pq.QuoteIdentifier(s.table+"_"+s.cols.Metadata+"_idx"), s.qTable(), s.qMeta()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('english', %s))",
			pq.QuoteIdentifier(s.table+"_"+s.cols.Content+"_tsv_idx"), s.qTable(), s.qContent()),
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("postgres", "ensure indexes", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// vectorLiteral renders a pgvector input literal.
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var metadata []byte
	if err := row.Scan(&doc.ID, &doc.Content, &metadata); err != nil {
		return Document{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("unmarshal metadata for %q: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var doc Document
		var metadata []byte
		var score float64
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &score); err != nil {
			return nil, storeErr("postgres", "scan", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				return nil, storeErr("postgres", "scan", fmt.Errorf("unmarshal metadata for %q: %w", doc.ID, err))
			}
		}
		results = append(results, SearchResult{Document: doc, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("postgres", "scan", err)
	}
	return results, nil
}

// tableMissing reports the undefined-table error class; reads treat
// it as an empty store so a fresh database works before any ingest.
func tableMissing(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return false
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ Upserter       = (*PostgresStore)(nil)
	_ HybridSearcher = (*PostgresStore)(nil)
	_ IndexEnsurer   = (*PostgresStore)(nil)
	_ FileChecker    = (*PostgresStore)(nil)
	_ Lister         = (*PostgresStore)(nil)
	_ Deleter        = (*PostgresStore)(nil)
)
