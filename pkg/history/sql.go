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
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore keeps history in a chat_messages table. Rows are retained
// unbounded as an audit trail; the window is applied at read time.
// Concurrency is handled by database-level locking (transactions).
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createMessagesSchemaSQL = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT NOT NULL,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, id)
)`

const createMessagesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, sequence_num)`

// NewSQLStore creates a SQL-backed history store and initializes the
// schema. Dialect must be postgres, mysql or sqlite.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the required tables if they don't exist.
func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute each statement separately for SQLite compatibility
	for _, stmt := range []string{createMessagesSchemaSQL, createMessagesIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// AddMessage appends a message. The next sequence number is read and
// the row inserted inside one transaction so concurrent writers to the
// same session serialize on the database.
func (s *SQLStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seqQuery := `SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM chat_messages WHERE session_id = ?`
	if s.dialect == "postgres" {
		seqQuery = convertToPostgresPlaceholders(seqQuery)
	}
	var seqNum int
	if err := tx.QueryRowContext(ctx, seqQuery, sessionID).Scan(&seqNum); err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	insertQuery := `INSERT INTO chat_messages (id, session_id, role, content, sequence_num, created_at)
	                VALUES (?, ?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		insertQuery = convertToPostgresPlaceholders(insertQuery)
	}
	_, err = tx.ExecContext(ctx, insertQuery,
		uuid.NewString(), sessionID, role, content, seqNum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRecent returns up to n most recent messages, oldest first. The
// subquery picks the newest rows, the outer query restores
// chronological order without reversing in memory.
func (s *SQLStore) GetRecent(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `SELECT session_id, role, content, created_at FROM (
	    SELECT session_id, role, content, sequence_num, created_at FROM chat_messages
	    WHERE session_id = ? ORDER BY sequence_num DESC LIMIT ?
	) sub ORDER BY sequence_num ASC`
	if s.dialect == "postgres" {
		query = convertToPostgresPlaceholders(query)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// convertToPostgresPlaceholders converts ? to $1, $2, etc. in a single pass.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString(fmt.Sprintf("$%d", paramNum))
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

var _ Store = (*SQLStore)(nil)
