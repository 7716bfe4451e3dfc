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
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/vectra/pkg/vector"
)

const watchDebounce = 500 * time.Millisecond

// Watcher keeps an ingested directory in sync with disk: created and
// modified files are re-ingested after a short quiet period, deleted
// files have their chunks removed when the store supports deletion.
type Watcher struct {
	engine  *Engine
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher starts watching dir. Call Run to process events.
func NewWatcher(engine *Engine, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		engine:  engine,
		watcher: fw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run processes file events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("Watching for file changes")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if skipIngest(filepath.Base(event.Name)) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.scheduleIngest(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.dropFile(ctx, event.Name)
	}
}

// scheduleIngest delays re-ingestion until the file has been quiet
// for the debounce window, collapsing editor write bursts into one
// run.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		if err := w.engine.IngestFile(ctx, path); err != nil {
			slog.Error("Re-ingestion failed", "path", path, "error", err)
		}
	})
}

func (w *Watcher) dropFile(ctx context.Context, path string) {
	deleter, ok := w.engine.store.(vector.Deleter)
	if !ok {
		return
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if err := deleter.DeleteByFilter(ctx, map[string]any{vector.MetaAbsolutePath: absPath}); err != nil {
		slog.Warn("Failed to remove deleted file from index", "path", path, "error", err)
	} else {
		slog.Info("Removed deleted file from index", "path", path)
	}
}

// Close stops the watcher. Pending re-ingestions are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
