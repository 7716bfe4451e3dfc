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
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/observability"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// IngestError records a per-file ingestion failure.
type IngestError struct {
	Path string
	Err  error
}

func (e IngestError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e IngestError) Unwrap() error { return e.Err }

// MarshalJSON flattens the wrapped error into its message, which a
// bare error value would not serialize.
func (e IngestError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{Path: e.Path, Error: e.Err.Error()})
}

// IngestSummary reports the outcome of an ingestion run.
type IngestSummary struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []IngestError `json:"errors,omitempty"`
}

// Ingest indexes path, which may be a single file or a directory.
func (e *Engine) Ingest(ctx context.Context, path string) (*IngestSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return e.IngestDirectory(ctx, path)
	}

	summary := &IngestSummary{Processed: 1}
	if err := e.IngestFile(ctx, path); err != nil {
		summary.Failed = 1
		summary.Errors = append(summary.Errors, IngestError{Path: path, Err: err})
	} else {
		summary.Succeeded = 1
	}
	e.callbacks.ingestSummary(*summary)
	return summary, nil
}

// IngestDirectory ingests every regular file directly under dir.
// Hidden files and temporary artifacts are skipped silently; nested
// directories are not traversed. Per-file failures are isolated and
// collected into the summary, in directory order.
func (e *Engine) IngestDirectory(ctx context.Context, dir string) (*IngestSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || skipIngest(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	limit := e.cfg.Ingestion.MaxConcurrent
	if limit < 1 {
		limit = 1
	}

	errs := make([]error, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = e.IngestFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait() // per-file errors land in errs, never here

	summary := &IngestSummary{Processed: len(files)}
	for i, err := range errs {
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, IngestError{Path: files[i], Err: err})
		} else {
			summary.Succeeded++
		}
	}

	slog.Info("Directory ingestion finished",
		"dir", dir,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	e.callbacks.ingestSummary(*summary)
	return summary, ctx.Err()
}

// IngestFile indexes a single file: fingerprint, duplicate check,
// load, chunk, embed, enrich, store.
func (e *Engine) IngestFile(ctx context.Context, path string) error {
	if err := e.ingestFile(ctx, path); err != nil {
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordIngest(ctx, "error")
		}
		e.callbacks.errorf(err)
		return err
	}
	return nil
}

func (e *Engine) ingestFile(ctx context.Context, path string) error {
	e.callbacks.ingestStart(path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	md5Hex, sha256Hex, err := fileDigests(absPath)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", path, err)
	}

	if e.cfg.Ingestion.Mode == config.IngestionSkip && e.alreadyIngested(ctx, sha256Hex, info) {
		e.markSkipped(ctx, path)
		return nil
	}

	doc, err := e.loaders.Load(ctx, absPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	e.callbacks.chunkingStart(path)
	chunks, metas, err := e.processor.Process(ctx, absPath, doc)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", path, err)
	}
	if len(chunks) == 0 {
		slog.Debug("No chunks produced", "path", path)
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordIngest(ctx, "success")
		}
		e.callbacks.ingestEnd(path, 0)
		return nil
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	if e.enricher != nil {
		for i := range chunks {
			enriched, err := e.enricher.Enrich(ctx, chunks[i].Content)
			if err != nil {
				return err
			}
			metas[i].Summary = enriched.Summary
			metas[i].Keywords = enriched.Keywords
			metas[i].HypotheticalQuestions = enriched.HypotheticalQuestions
		}
	}

	if ensurer, ok := e.store.(vector.IndexEnsurer); ok {
		if err := ensurer.EnsureIndexes(ctx); err != nil {
			slog.Warn("Index preparation failed", "error", err)
		}
	}

	// Another worker may have finished the same content while this one
	// was embedding. Re-check so skip mode stays idempotent.
	if e.cfg.Ingestion.Mode == config.IngestionSkip && e.alreadyIngested(ctx, sha256Hex, info) {
		e.markSkipped(ctx, path)
		return nil
	}

	docs := e.storedDocuments(absPath, md5Hex, sha256Hex, info, chunks, metas, vectors)
	if err := e.writeDocuments(ctx, absPath, docs); err != nil {
		return err
	}

	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordChunksIndexed(ctx, len(docs))
		m.RecordIngest(ctx, "success")
	}
	e.callbacks.ingestEnd(path, len(chunks))
	slog.Info("Ingested file", "path", path, "chunks", len(chunks))
	return nil
}

// embedChunks returns one vector per chunk. Cached chunks reuse their
// stored vectors; the rest are embedded in batches with per-batch
// retry. Batch size follows the rate limit configuration.
func (e *Engine) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	var missing []int
	for i, chunk := range chunks {
		if vec, ok := e.cache.Get(chunk.SHA256); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordEmbeddingCache(ctx, len(chunks)-len(missing), len(missing))
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	e.callbacks.embeddingStart(len(missing))

	batchSize := len(missing)
	if e.cfg.Ingestion.RateLimitEnabled && e.cfg.Ingestion.ConcurrencyLimit > 0 {
		batchSize = e.cfg.Ingestion.ConcurrencyLimit
	}

	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		batch := missing[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Content
		}

		embedded, err := DoWithResult(ctx, e.retryer, "embed batch", func() ([][]float32, error) {
			vecs, embedErr := e.backend.EmbedDocuments(ctx, texts)
			if m := observability.GetGlobalMetrics(); m != nil {
				m.RecordEmbeddingBatch(ctx, embedErr)
			}
			return vecs, embedErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("embed batch: got %d vectors for %d chunks", len(embedded), len(batch))
		}

		for j, idx := range batch {
			vectors[idx] = embedded[j]
			e.cache.Put(chunks[idx].SHA256, embedded[j])
		}
	}

	return vectors, nil
}

// storedDocuments assembles storage records: stable ids derived from
// the file digest, chunk metadata flattened over the file fingerprint.
func (e *Engine) storedDocuments(absPath, md5Hex, sha256Hex string, info os.FileInfo, chunks []Chunk, metas []ChunkMetadata, vectors [][]float32) []vector.Document {
	fingerprint := vector.FileFingerprint(md5Hex, sha256Hex, info.Size(), info.ModTime())

	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]any{
			vector.MetaSource:       filepath.Base(absPath),
			vector.MetaAbsolutePath: absPath,
		}
		for k, v := range fingerprint {
			meta[k] = v
		}
		for k, v := range metas[i].toMap() {
			meta[k] = v
		}
		docs[i] = vector.Document{
			ID:        DocumentID(sha256Hex, chunk.Index),
			Content:   chunk.Content,
			Embedding: vectors[i],
			Metadata:  meta,
		}
	}
	return docs
}

// writeDocuments commits records per the configured mode. Replace
// clears the file's previous chunks and upserts; append and skip add.
// Writes are retried like embedding batches.
func (e *Engine) writeDocuments(ctx context.Context, absPath string, docs []vector.Document) error {
	if e.cfg.Ingestion.Mode == config.IngestionReplace {
		if deleter, ok := e.store.(vector.Deleter); ok {
			err := e.retryer.Do(ctx, "delete previous chunks", func() error {
				return deleter.DeleteByFilter(ctx, map[string]any{vector.MetaAbsolutePath: absPath})
			})
			if err != nil {
				return fmt.Errorf("replace %s: %w", absPath, err)
			}
		}
		if upserter, ok := e.store.(vector.Upserter); ok {
			return e.retryer.Do(ctx, "upsert documents", func() error {
				return upserter.UpsertDocuments(ctx, docs)
			})
		}
	}
	return e.retryer.Do(ctx, "add documents", func() error {
		return e.store.AddDocuments(ctx, docs)
	})
}

func (e *Engine) alreadyIngested(ctx context.Context, sha256Hex string, info os.FileInfo) bool {
	checker, ok := e.store.(vector.FileChecker)
	if !ok {
		return false
	}
	exists, err := checker.FileExists(ctx, sha256Hex, info.Size(), info.ModTime())
	if err != nil {
		slog.Warn("File existence check failed", "error", err)
		return false
	}
	return exists
}

func (e *Engine) markSkipped(ctx context.Context, path string) {
	slog.Info("Skipping already indexed file", "path", path)
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordIngest(ctx, "skipped")
	}
	e.callbacks.ingestSkipped(path)
}

// fileDigests computes MD5 and SHA-256 in one streaming pass.
func fileDigests(path string) (md5Hex, sha256Hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	md5Sum := md5.New()
	shaSum := sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5Sum, shaSum), f); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(md5Sum.Sum(nil)), hex.EncodeToString(shaSum.Sum(nil)), nil
}

// skipIngest reports whether a file name is hidden or a temporary
// artifact left behind by editors and download tools.
func skipIngest(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".temp", ".crdownload", ".part":
		return true
	}
	return false
}
