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

package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts per-page plain text from PDF files.
type PDFLoader struct{}

func (PDFLoader) Extensions() []string {
	return []string{".pdf"}
}

func (PDFLoader) Load(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// An unreadable page keeps its slot; losing one page
			// must not shift the numbering of the rest.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return &Result{
		Text:  strings.Join(pages, PageSeparator),
		Pages: pages,
	}, nil
}

var _ Loader = PDFLoader{}
