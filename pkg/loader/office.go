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
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// DocxLoader extracts plain text from Word documents.
type DocxLoader struct{}

func (DocxLoader) Extensions() []string {
	return []string{".docx"}
}

func (DocxLoader) Load(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = doc.Close() }()

	// GetContent returns raw WordprocessingML, not text.
	return &Result{Text: docxPlainText(doc.Editable().GetContent())}, nil
}

var (
	docxBreaks = regexp.MustCompile(`</w:p>|<w:br[^>]*>`)
	docxTabs   = regexp.MustCompile(`<w:tab[^>]*>`)
	xmlTags    = regexp.MustCompile(`<[^>]+>`)
)

// docxPlainText flattens WordprocessingML into text: paragraph and
// line breaks become newlines, tabs become tabs, remaining markup is
// dropped and entities are unescaped.
func docxPlainText(content string) string {
	text := docxBreaks.ReplaceAllString(content, "\n")
	text = docxTabs.ReplaceAllString(text, "\t")
	text = xmlTags.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(text)
}

// XLSXLoader extracts text from spreadsheets, one page per sheet
// with tab-separated cells.
type XLSXLoader struct{}

func (XLSXLoader) Extensions() []string {
	return []string{".xlsx"}
}

func (XLSXLoader) Load(ctx context.Context, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, name := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(name)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		pages = append(pages, strings.TrimRight(b.String(), "\n"))
	}

	return &Result{
		Text:  strings.Join(pages, PageSeparator),
		Pages: pages,
	}, nil
}

var _ Loader = XLSXLoader{}
var _ Loader = DocxLoader{}
