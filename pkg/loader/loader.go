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

// Package loader reads source documents into plain text.
//
// A Registry dispatches on file extension: text and markdown are read
// as-is, PDF pages come from ledongthuc/pdf, Word documents from
// nguyenthenguyen/docx, and spreadsheets from xuri/excelize with one
// page per sheet. Files with an unknown extension are read as text.
//
// Paged formats return the ordered page texts next to the joined
// text so chunk offsets can be mapped back to page numbers.
package loader

import (
	"context"
	"path/filepath"
	"strings"
)

// PageSeparator joins page texts into Result.Text. Page mapping over
// cumulative page lengths has to account for it.
const PageSeparator = "\n\n"

// Result is a loaded document.
type Result struct {
	// Text is the full document text. For paged formats it is
	// Pages joined with PageSeparator.
	Text string

	// Pages holds the ordered page texts for paged formats, nil
	// otherwise. Empty pages keep their slot so 1-based page
	// numbers stay aligned with the source document.
	Pages []string
}

// Loader extracts text from one family of file formats.
type Loader interface {
	// Load reads the document at path.
	Load(ctx context.Context, path string) (*Result, error)

	// Extensions lists the file extensions this loader handles,
	// lowercase with the leading dot.
	Extensions() []string
}

// Registry routes files to loaders by extension.
type Registry struct {
	byExt    map[string]Loader
	fallback Loader
}

// NewRegistry returns a registry with all built-in loaders. Unknown
// extensions fall back to the text loader.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Loader),
		fallback: TextLoader{},
	}
	r.Register(TextLoader{})
	r.Register(PDFLoader{})
	r.Register(DocxLoader{})
	r.Register(XLSXLoader{})
	return r
}

// Register adds a loader for its extensions, replacing any previous
// registration for the same extension.
func (r *Registry) Register(l Loader) {
	for _, ext := range l.Extensions() {
		r.byExt[strings.ToLower(ext)] = l
	}
}

// Load reads the document at path with the loader registered for its
// extension.
func (r *Registry) Load(ctx context.Context, path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := r.byExt[ext]; ok {
		return l.Load(ctx, path)
	}
	return r.fallback.Load(ctx, path)
}

// loaderFor exposes the routing decision for tests.
func (r *Registry) loaderFor(path string) Loader {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := r.byExt[ext]; ok {
		return l
	}
	return r.fallback
}
