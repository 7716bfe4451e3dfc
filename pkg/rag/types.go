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
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Chunk metadata keys. Together with the file fingerprint keys in
// pkg/vector these make up the stored-record metadata contract.
const (
	MetaFileType              = "fileType"
	MetaDocTitle              = "docTitle"
	MetaPageFrom              = "pageFrom"
	MetaPageTo                = "pageTo"
	MetaSection               = "section"
	MetaChunkIndex            = "chunkIndex"
	MetaSummary               = "summary"
	MetaKeywords              = "keywords"
	MetaHypotheticalQuestions = "hypotheticalQuestions"
)

// idNamespace is the fixed UUIDv5 namespace for chunk ids. The literal
// seed must not change: ids derived from it identify previously stored
// chunks across re-ingests and across implementations.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("vectra-js"))

// DocumentID returns the stable id for a chunk, derived from the
// source file's SHA-256 and the chunk's index within the file. The
// same (file, index) pair always yields the same id.
func DocumentID(fileSHA256 string, chunkIndex int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s:%d", fileSHA256, chunkIndex))).String()
}

// Chunk is a contiguous text segment cut from a single source
// document. Start and End are byte offsets into the source text;
// Index is dense within the file.
type Chunk struct {
	Content string
	Start   int
	End     int
	Index   int

	// SHA256 is the hex digest of Content, the embedding cache key.
	SHA256 string
}

// ChunkMetadata is the per-chunk metadata computed at ingestion.
// Stored flattened into the document metadata map under the Meta*
// keys above.
type ChunkMetadata struct {
	FileType              string   `mapstructure:"fileType"`
	DocTitle              string   `mapstructure:"docTitle"`
	PageFrom              int      `mapstructure:"pageFrom"`
	PageTo                int      `mapstructure:"pageTo"`
	Section               string   `mapstructure:"section,omitempty"`
	ChunkIndex            int      `mapstructure:"chunkIndex"`
	Summary               string   `mapstructure:"summary,omitempty"`
	Keywords              []string `mapstructure:"keywords,omitempty"`
	HypotheticalQuestions []string `mapstructure:"hypotheticalQuestions,omitempty"`
}

// toMap flattens the metadata for storage. Zero-valued optional
// fields are omitted so stored records stay compact.
func (m ChunkMetadata) toMap() map[string]any {
	out := map[string]any{
		MetaFileType:   m.FileType,
		MetaDocTitle:   m.DocTitle,
		MetaPageFrom:   m.PageFrom,
		MetaPageTo:     m.PageTo,
		MetaChunkIndex: m.ChunkIndex,
	}
	if m.Section != "" {
		out[MetaSection] = m.Section
	}
	if m.Summary != "" {
		out[MetaSummary] = m.Summary
	}
	if len(m.Keywords) > 0 {
		out[MetaKeywords] = m.Keywords
	}
	if len(m.HypotheticalQuestions) > 0 {
		out[MetaHypotheticalQuestions] = m.HypotheticalQuestions
	}
	return out
}

// decodeChunkMetadata recovers typed chunk metadata from a stored
// metadata map. Weak typing absorbs backend round-trip quirks such as
// ints surfacing as strings or float64 and []string as []any.
func decodeChunkMetadata(in map[string]any) (ChunkMetadata, error) {
	var out ChunkMetadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(in); err != nil {
		return out, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return out, nil
}

// RetrievedDoc is a search hit flowing through the query pipeline.
type RetrievedDoc struct {
	Content  string
	Metadata map[string]any
	Score    float64
}

// ContextPart is one planned context entry: a citation header and the
// selected body text (summary or truncated content).
type ContextPart struct {
	Header string
	Body   string
}

// QueryResult is the non-streaming answer to a query.
type QueryResult struct {
	Answer string `json:"answer"`

	// Sources carries the metadata of every document that informed the
	// answer, in pipeline order.
	Sources []map[string]any `json:"sources"`
}

// QueryState names the stage a query is in. States advance strictly
// forward; a cancelled or failed query never resumes.
type QueryState string

const (
	StatePending    QueryState = "pending"
	StateRetrieving QueryState = "retrieving"
	StateRewriting  QueryState = "rewriting"
	StateReranking  QueryState = "reranking"
	StatePlanning   QueryState = "planning"
	StateGrounding  QueryState = "grounding"
	StateGenerating QueryState = "generating"
	StateDone       QueryState = "done"
	StateFailed     QueryState = "failed"
)
