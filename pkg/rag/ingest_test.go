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

package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// testConfig returns a config with retry backoff shrunk to
// microseconds so exhaustion tests stay fast.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Ingestion.Retry.BaseDelay = config.Duration(time.Millisecond)
	cfg.Ingestion.Retry.MaxDelay = config.Duration(2 * time.Millisecond)
	return cfg
}

func testEngine(t *testing.T, cfg *config.Config, backend *mockBackend, store vector.Store, opts ...Option) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	opts = append([]Option{WithBackend(backend), WithStore(store)}, opts...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestIngestFile(t *testing.T) {
	backend := newMockBackend()
	store := &mockFullStore{}
	e := testEngine(t, nil, backend, store)

	content := "A short note about gophers."
	path := writeFile(t, t.TempDir(), "doc.txt", content)

	require.NoError(t, e.IngestFile(context.Background(), path))

	require.Len(t, store.added, 1)
	doc := store.added[0]

	fileSHA := sha256Hex(content)
	assert.Equal(t, DocumentID(fileSHA, 0), doc.ID)
	assert.Equal(t, content, doc.Content)
	assert.Equal(t, backend.vectorFor(content), doc.Embedding)

	absPath, _ := filepath.Abs(path)
	assert.Equal(t, "doc.txt", doc.Metadata[vector.MetaSource])
	assert.Equal(t, absPath, doc.Metadata[vector.MetaAbsolutePath])
	assert.Equal(t, fileSHA, doc.Metadata[vector.MetaFileSHA256])
	assert.Equal(t, "doc", doc.Metadata[MetaDocTitle])
	assert.Equal(t, "txt", doc.Metadata[MetaFileType])
	assert.Equal(t, 0, doc.Metadata[MetaChunkIndex])

	// Skip mode checks before loading and re-checks before writing.
	assert.Equal(t, 2, store.existsCalls)
	assert.Equal(t, 1, backend.embedCalls)
}

// A file whose fingerprint is already indexed is skipped without a
// single embedding call.
func TestIngestFileSkipsDuplicate(t *testing.T) {
	backend := newMockBackend()
	store := &mockFullStore{exists: true}

	var skipped string
	e := testEngine(t, nil, backend, store, WithCallbacks(Callbacks{
		OnIngestSkipped: func(path string) { skipped = path },
	}))

	path := writeFile(t, t.TempDir(), "doc.txt", "already indexed content")
	require.NoError(t, e.IngestFile(context.Background(), path))

	assert.Equal(t, path, skipped)
	assert.Equal(t, 0, backend.embedCalls)
	assert.Empty(t, store.added)
	assert.Equal(t, 0, store.upsertCalls)
	assert.Equal(t, 1, store.existsCalls)
}

func TestIngestFileReplaceMode(t *testing.T) {
	backend := newMockBackend()
	// exists would trigger a skip in skip mode; replace must ignore it.
	store := &mockFullStore{exists: true}

	cfg := testConfig()
	cfg.Ingestion.Mode = config.IngestionReplace
	e := testEngine(t, cfg, backend, store)

	path := writeFile(t, t.TempDir(), "doc.txt", "fresh content")
	require.NoError(t, e.IngestFile(context.Background(), path))

	assert.Equal(t, 0, store.existsCalls)

	absPath, _ := filepath.Abs(path)
	require.Len(t, store.deleteFilters, 1)
	assert.Equal(t, map[string]any{vector.MetaAbsolutePath: absPath}, store.deleteFilters[0])

	assert.Equal(t, 1, store.upsertCalls)
	require.Len(t, store.upserted, 1)
	assert.Empty(t, store.added)
}

// Replace degrades to plain adds when the store supports neither
// deletion nor upserts.
func TestIngestFileReplaceOnPlainStore(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}

	cfg := testConfig()
	cfg.Ingestion.Mode = config.IngestionReplace
	e := testEngine(t, cfg, backend, store)

	path := writeFile(t, t.TempDir(), "doc.txt", "fresh content")
	require.NoError(t, e.IngestFile(context.Background(), path))
	assert.Equal(t, 1, store.addCalls)
	assert.Len(t, store.added, 1)
}

func TestIngestFileEnrichment(t *testing.T) {
	backend := newMockBackend()
	backend.replies = []string{`{"summary":"Chunk summary.","keywords":["alpha"],"hypotheticalQuestions":["What is alpha?"]}`}
	store := &mockStore{}

	cfg := testConfig()
	cfg.Metadata.Enrichment = true
	e := testEngine(t, cfg, backend, store)

	path := writeFile(t, t.TempDir(), "doc.txt", "alpha content")
	require.NoError(t, e.IngestFile(context.Background(), path))

	require.Len(t, store.added, 1)
	meta := store.added[0].Metadata
	assert.Equal(t, "Chunk summary.", meta[MetaSummary])
	assert.Equal(t, []string{"alpha"}, meta[MetaKeywords])
	assert.Equal(t, []string{"What is alpha?"}, meta[MetaHypotheticalQuestions])
	assert.Equal(t, 1, backend.generateCalls)
}

// Re-ingesting identical content reuses cached embeddings.
func TestIngestFileEmbeddingCache(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}
	e := testEngine(t, nil, backend, store)

	dir := t.TempDir()
	first := writeFile(t, dir, "one.txt", "shared content")
	second := writeFile(t, dir, "two.txt", "shared content")

	require.NoError(t, e.IngestFile(context.Background(), first))
	require.NoError(t, e.IngestFile(context.Background(), second))

	assert.Equal(t, 1, backend.embedCalls)
	assert.Len(t, store.added, 2)
	assert.Equal(t, 1, e.cache.Len())
}

func TestIngestFileBatchesUnderRateLimit(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}

	cfg := testConfig()
	cfg.Chunking.ChunkSize = 40
	cfg.Ingestion.RateLimitEnabled = true
	cfg.Ingestion.ConcurrencyLimit = 1
	e := testEngine(t, cfg, backend, store)

	path := writeFile(t, t.TempDir(), "doc.txt",
		"First sentence here.\nSecond one is fine!\nTrailing bit here now.")
	require.NoError(t, e.IngestFile(context.Background(), path))

	// Two chunks, batch size one: one wire call per chunk.
	assert.Equal(t, 2, backend.embedCalls)
	require.Len(t, store.added, 2)

	fileSHA := store.added[0].Metadata[vector.MetaFileSHA256]
	assert.Equal(t, DocumentID(fileSHA.(string), 0), store.added[0].ID)
	assert.Equal(t, DocumentID(fileSHA.(string), 1), store.added[1].ID)
}

func TestIngestFileEmptyFile(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}

	var endPath string
	var endChunks int
	e := testEngine(t, nil, backend, store, WithCallbacks(Callbacks{
		OnIngestEnd: func(path string, chunks int) {
			endPath = path
			endChunks = chunks
		},
	}))

	path := writeFile(t, t.TempDir(), "empty.txt", "")
	require.NoError(t, e.IngestFile(context.Background(), path))

	assert.Equal(t, path, endPath)
	assert.Equal(t, 0, endChunks)
	assert.Equal(t, 0, store.addCalls)
	assert.Equal(t, 0, backend.embedCalls)
}

func TestIngestFileRetriesTransientWrites(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{addErr: &vector.StoreError{Store: "mock", Op: "add", Err: errors.New("down")}}

	var gotErr error
	e := testEngine(t, nil, backend, store, WithCallbacks(Callbacks{
		OnError: func(err error) { gotErr = err },
	}))

	path := writeFile(t, t.TempDir(), "doc.txt", "content")
	err := e.IngestFile(context.Background(), path)

	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	// Initial attempt plus three retries.
	assert.Equal(t, 4, store.addCalls)
	assert.Equal(t, err, gotErr)
}

func TestIngestFileNonRetryableWriteFailsFast(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{addErr: errors.New("schema rejected")}
	e := testEngine(t, nil, backend, store)

	path := writeFile(t, t.TempDir(), "doc.txt", "content")
	err := e.IngestFile(context.Background(), path)

	assert.ErrorContains(t, err, "schema rejected")
	assert.Equal(t, 1, store.addCalls)
}

func TestIngestFileMissing(t *testing.T) {
	e := testEngine(t, nil, newMockBackend(), &mockStore{})
	err := e.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{addFailFor: "FAILMARK"}

	var summaryCb IngestSummary
	e := testEngine(t, nil, backend, store, WithCallbacks(Callbacks{
		OnIngestSummary: func(s IngestSummary) { summaryCb = s },
	}))

	dir := t.TempDir()
	writeFile(t, dir, "bad.txt", "this one carries FAILMARK inside")
	writeFile(t, dir, "good1.txt", "first good file")
	writeFile(t, dir, "good2.txt", "second good file")
	writeFile(t, dir, ".hidden.txt", "never read")
	writeFile(t, dir, "~$lock.docx", "never read")
	writeFile(t, dir, "draft.tmp", "never read")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "deep.txt", "never read")

	summary, err := e.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, filepath.Join(dir, "bad.txt"), summary.Errors[0].Path)

	// Only the two good files made it into the store.
	require.Len(t, store.added, 2)
	assert.ElementsMatch(t,
		[]string{"first good file", "second good file"},
		[]string{store.added[0].Content, store.added[1].Content})

	assert.Equal(t, *summary, summaryCb)
}

func TestIngestDirectoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := newMockBackend()
	store := &mockStore{}
	e := testEngine(t, nil, backend, store)

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content a")
	writeFile(t, dir, "b.txt", "content b")

	summary, err := e.IngestDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, store.addCalls)
}

func TestIngestDispatches(t *testing.T) {
	backend := newMockBackend()
	store := &mockStore{}
	e := testEngine(t, nil, backend, store)

	dir := t.TempDir()
	path := writeFile(t, dir, "doc.txt", "file content")

	summary, err := e.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, &IngestSummary{Processed: 1, Succeeded: 1}, summary)

	summary, err = e.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	_, err = e.Ingest(context.Background(), filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestFileDigests(t *testing.T) {
	path := writeFile(t, t.TempDir(), "abc.txt", "abc")

	md5Hex, shaHex, err := fileDigests(path)
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", md5Hex)
	assert.Equal(t, testFileSHA, shaHex)
}

func TestSkipIngest(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".hidden", true},
		{".DS_Store", true},
		{"~$report.docx", true},
		{"draft.tmp", true},
		{"DRAFT.TMP", true},
		{"notes.temp", true},
		{"video.crdownload", true},
		{"iso.part", true},
		{"doc.txt", false},
		{"archive.tar.gz", false},
		{"tmp.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, skipIngest(tt.name), tt.name)
	}
}

func TestIngestSummaryJSON(t *testing.T) {
	summary := IngestSummary{
		Processed: 2,
		Succeeded: 1,
		Failed:    1,
		Errors:    []IngestError{{Path: "/data/bad.txt", Err: errors.New("boom")}},
	}

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"processed":2,"succeeded":1,"failed":1,"errors":[{"path":"/data/bad.txt","error":"boom"}]}`,
		string(raw))
}
