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

// Package vector provides the stores that hold embedded document chunks.
//
// Every store implements the required Store interface. Richer behavior
// (upsert, hybrid search, index management, file fingerprint checks,
// listing, deletion) is exposed through optional capability interfaces
// discovered via type assertion. Callers degrade gracefully when a
// capability is absent: hybrid search falls back to similarity search
// and a missing FileChecker simply reports every file as new.
//
// Four backends are available:
//
//   - chromem: embedded, pure Go, optional persistence. The default.
//   - qdrant: external server over gRPC.
//   - pinecone: hosted index service.
//   - postgres: pgvector column plus JSONB metadata, the only backend
//     with native hybrid search and listing.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Metadata keys stamped on every stored chunk. The names are part of
// the stored-record contract: FileExists looks up the fingerprint
// values and replace-mode ingestion deletes by MetaAbsolutePath.
const (
	MetaSource       = "source"
	MetaAbsolutePath = "absolutePath"
	MetaFileMD5      = "fileMD5"
	MetaFileSHA256   = "fileSHA256"
	MetaFileSize     = "fileSize"
	MetaLastModified = "lastModified"
)

// Document is a chunk ready for storage: content, a pre-computed
// embedding, and its metadata including the file fingerprint.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// SearchResult is a retrieved document with its similarity score.
// Higher scores are more similar.
type SearchResult struct {
	Document
	Score float32
}

// Store is the required surface of a vector store. Implementations
// must be safe for concurrent use.
//
// Filters are conjunctive equality maps over metadata keys: a document
// matches when every filter entry equals the stored value.
type Store interface {
	// AddDocuments writes documents with pre-computed embeddings.
	AddDocuments(ctx context.Context, docs []Document) error

	// SimilaritySearch returns the k nearest documents to vector,
	// optionally restricted by a metadata filter.
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]SearchResult, error)

	// Close releases the store's resources.
	Close() error
}

// Upserter replaces existing documents by ID instead of duplicating
// them. Stores with natural upsert semantics implement both this and
// AddDocuments identically.
type Upserter interface {
	UpsertDocuments(ctx context.Context, docs []Document) error
}

// HybridSearcher combines lexical and vector search in the backend.
// Stores without native hybrid support omit this interface and callers
// fall back to SimilaritySearch.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, query string, vector []float32, k int, filter map[string]any) ([]SearchResult, error)
}

// IndexEnsurer prepares backend indexes ahead of bulk writes.
// Implementations must be idempotent.
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

// FileChecker reports whether a file's chunks are already stored.
// All three fingerprint components must match; a changed file yields
// false so ingestion runs again.
type FileChecker interface {
	FileExists(ctx context.Context, sha256 string, size int64, modTime time.Time) (bool, error)
}

// ListOptions selects documents for listing.
type ListOptions struct {
	Filter map[string]any
	Limit  int
	Offset int
}

// Lister enumerates stored documents without a similarity query.
type Lister interface {
	ListDocuments(ctx context.Context, opts ListOptions) ([]Document, error)
}

// Deleter removes documents by ID or by metadata filter.
type Deleter interface {
	DeleteByID(ctx context.Context, ids ...string) error
	DeleteByFilter(ctx context.Context, filter map[string]any) error
}

// FileFingerprint returns the per-file identity metadata merged into
// every chunk's metadata at ingestion. FileExists implementations
// compare their arguments against these exact encodings, so the
// values are strings on every backend.
func FileFingerprint(md5Hex, sha256Hex string, size int64, modTime time.Time) map[string]any {
	return map[string]any{
		MetaFileMD5:      md5Hex,
		MetaFileSHA256:   sha256Hex,
		MetaFileSize:     sizeString(size),
		MetaLastModified: modTimeString(modTime),
	}
}

func sizeString(n int64) string {
	return strconv.FormatInt(n, 10)
}

func modTimeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// dimGuard pins the vector dimension a store accepts. The dimension
// comes from configuration when set, otherwise from the first write,
// and every later write must agree.
type dimGuard struct {
	mu    sync.Mutex
	store string
	want  int
}

func newDimGuard(store string, configured int) *dimGuard {
	return &dimGuard{store: store, want: configured}
}

func (g *dimGuard) check(docs []Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range docs {
		got := len(docs[i].Embedding)
		if got == 0 {
			return fmt.Errorf("document %q has no embedding", docs[i].ID)
		}
		if g.want == 0 {
			g.want = got
		}
		if got != g.want {
			return &DimensionMismatchError{Store: g.store, Want: g.want, Got: got}
		}
	}
	return nil
}

// dim returns the committed dimension, or 0 before the first write.
func (g *dimGuard) dim() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.want
}
