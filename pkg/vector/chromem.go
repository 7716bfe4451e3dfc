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
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/vectra/pkg/config"
)

// ChromemStore is the embedded store built on chromem-go. It needs no
// external services, keeps all vectors in memory, and optionally
// persists them to disk. This is the default backend and the one the
// test suite runs against.
//
// File fingerprints live in a sidecar collection next to the document
// collection so FileExists works without knowing the embedding
// dimension up front.
type ChromemStore struct {
	db    *chromem.DB
	docs  *chromem.Collection
	files *chromem.Collection
	guard *dimGuard
}

// fingerprint documents carry a fixed one-dimensional embedding;
// they are only ever looked up by metadata.
var fingerprintEmbedding = []float32{1}

// NewChromemStore creates a chromem-backed store. With a persist path
// the database is loaded from disk and every write is persisted.
func NewChromemStore(cfg *config.DatabaseConfig, dims int) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("chromem: create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: open persistent database at %s: %w", cfg.PersistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are computed upstream; chromem must never embed.
	identity := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding requested for %q but vectors are computed upstream", text)
	}

	docs, err := db.GetOrCreateCollection(cfg.Collection, nil, identity)
	if err != nil {
		return nil, fmt.Errorf("chromem: open collection %q: %w", cfg.Collection, err)
	}
	files, err := db.GetOrCreateCollection(cfg.Collection+".files", nil, identity)
	if err != nil {
		return nil, fmt.Errorf("chromem: open collection %q: %w", cfg.Collection+".files", err)
	}

	return &ChromemStore{
		db:    db,
		docs:  docs,
		files: files,
		guard: newDimGuard("chromem", dims),
	}, nil
}

// AddDocuments writes documents and records their file fingerprints.
// chromem keys documents by ID, so adding is already an upsert.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.guard.check(docs); err != nil {
		return storeErr("chromem", "add", err)
	}

	converted := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		converted = append(converted, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  encodeMetadata(doc.Metadata),
			Embedding: doc.Embedding,
		})
	}
	if err := s.docs.AddDocuments(ctx, converted, runtime.NumCPU()); err != nil {
		return storeErr("chromem", "add", err)
	}

	if fps := fingerprintDocs(docs); len(fps) > 0 {
		if err := s.files.AddDocuments(ctx, fps, 1); err != nil {
			return storeErr("chromem", "add fingerprints", err)
		}
	}
	return nil
}

// UpsertDocuments is identical to AddDocuments.
func (s *ChromemStore) UpsertDocuments(ctx context.Context, docs []Document) error {
	return s.AddDocuments(ctx, docs)
}

// SimilaritySearch returns the k nearest documents by cosine
// similarity, optionally restricted by a metadata filter.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]SearchResult, error) {
	count := s.docs.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	// QueryEmbedding rejects nResults beyond the matching document
	// count, so with a filter we fetch the full ranking and narrow
	// it here.
	n := k
	if len(filter) > 0 || n > count {
		n = count
	}
	found, err := s.docs.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, storeErr("chromem", "search", err)
	}

	results := make([]SearchResult, 0, k)
	for _, r := range found {
		if !metadataMatches(r.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: decodeMetadata(r.Metadata),
			},
			Score: r.Similarity,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// FileExists reports whether a file with this exact fingerprint has
// been ingested before.
func (s *ChromemStore) FileExists(ctx context.Context, sha256 string, size int64, modTime time.Time) (bool, error) {
	count := s.files.Count()
	if count == 0 {
		return false, nil
	}
	found, err := s.files.QueryEmbedding(ctx, fingerprintEmbedding, count, nil, nil)
	if err != nil {
		return false, storeErr("chromem", "file check", err)
	}
	for _, r := range found {
		if r.Metadata[MetaFileSHA256] == sha256 &&
			r.Metadata[MetaFileSize] == sizeString(size) &&
			r.Metadata[MetaLastModified] == modTimeString(modTime) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteByID removes documents by ID.
func (s *ChromemStore) DeleteByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.docs.Delete(ctx, nil, nil, ids...); err != nil {
		return storeErr("chromem", "delete", err)
	}
	return nil
}

// DeleteByFilter removes all documents matching the filter. Deletes
// keyed by file identity also drop the matching fingerprints so a
// later FileExists does not report a removed file.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for key, value := range filter {
		where[key] = encodeMetaValue(value)
	}
	if err := s.docs.Delete(ctx, where, nil); err != nil {
		return storeErr("chromem", "delete", err)
	}

	mirror := make(map[string]string)
	for _, key := range []string{MetaAbsolutePath, MetaFileSHA256} {
		if v, ok := where[key]; ok {
			mirror[key] = v
		}
	}
	if len(mirror) > 0 && s.files.Count() > 0 {
		if err := s.files.Delete(ctx, mirror, nil); err != nil {
			return storeErr("chromem", "delete fingerprints", err)
		}
	}
	return nil
}

// Close is a no-op; persistent databases are flushed on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// fingerprintDocs builds one sidecar document per distinct file in the
// batch, keyed by the file's content hash.
func fingerprintDocs(docs []Document) []chromem.Document {
	seen := make(map[string]bool)
	var out []chromem.Document
	for _, doc := range docs {
		sha, ok := doc.Metadata[MetaFileSHA256].(string)
		if !ok || sha == "" || seen[sha] {
			continue
		}
		seen[sha] = true
		meta := map[string]string{MetaFileSHA256: sha}
		for _, key := range []string{MetaFileSize, MetaLastModified, MetaAbsolutePath} {
			if v, ok := doc.Metadata[key].(string); ok {
				meta[key] = v
			}
		}
		out = append(out, chromem.Document{
			ID:        sha,
			Metadata:  meta,
			Embedding: fingerprintEmbedding,
		})
	}
	return out
}

// chromem metadata is string-typed. Strings pass through unchanged;
// anything else is carried as JSON and decoded again on read.
func encodeMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for key, value := range meta {
		out[key] = encodeMetaValue(value)
	}
	return out
}

func encodeMetaValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}
	return fmt.Sprint(value)
}

func decodeMetadata(meta map[string]string) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for key, value := range meta {
		out[key] = decodeMetaValue(value)
	}
	return out
}

func decodeMetaValue(value string) any {
	if strings.HasPrefix(value, "[") || strings.HasPrefix(value, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
	}
	return value
}

func metadataMatches(meta map[string]string, filter map[string]any) bool {
	for key, value := range filter {
		if meta[key] != encodeMetaValue(value) {
			return false
		}
	}
	return true
}

var (
	_ Store       = (*ChromemStore)(nil)
	_ Upserter    = (*ChromemStore)(nil)
	_ FileChecker = (*ChromemStore)(nil)
	_ Deleter     = (*ChromemStore)(nil)
)
