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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256 of "abc", used as a stand-in file digest.
const testFileSHA = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestDocumentID(t *testing.T) {
	id := DocumentID(strings.Repeat("a", 64), 3)

	// The id is UUIDv5 over the fixed "vectra-js" namespace with
	// "<fileSHA256>:<index>" as the name. The literal pins the scheme:
	// stored ids must keep resolving across releases.
	assert.Equal(t, "978f2e27-7f18-57d2-9e38-70a99d74041c", id)

	ns := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("vectra-js"))
	want := uuid.NewSHA1(ns, []byte(strings.Repeat("a", 64)+":3")).String()
	assert.Equal(t, want, id)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestDocumentIDStable(t *testing.T) {
	assert.Equal(t, DocumentID(testFileSHA, 0), DocumentID(testFileSHA, 0))
	assert.NotEqual(t, DocumentID(testFileSHA, 0), DocumentID(testFileSHA, 1))
	assert.NotEqual(t,
		DocumentID(testFileSHA, 0),
		DocumentID("0000000000000000000000000000000000000000000000000000000000000000", 0))
}

func TestChunkMetadataToMapOmitsEmpty(t *testing.T) {
	m := ChunkMetadata{
		FileType:   "md",
		DocTitle:   "notes",
		PageFrom:   1,
		PageTo:     1,
		ChunkIndex: 2,
	}

	got := m.toMap()
	assert.Equal(t, map[string]any{
		MetaFileType:   "md",
		MetaDocTitle:   "notes",
		MetaPageFrom:   1,
		MetaPageTo:     1,
		MetaChunkIndex: 2,
	}, got)
}

func TestChunkMetadataRoundTrip(t *testing.T) {
	m := ChunkMetadata{
		FileType:              "pdf",
		DocTitle:              "report",
		PageFrom:              2,
		PageTo:                4,
		Section:               "Results",
		ChunkIndex:            7,
		Summary:               "short summary",
		Keywords:              []string{"alpha", "beta"},
		HypotheticalQuestions: []string{"what changed?"},
	}

	decoded, err := decodeChunkMetadata(m.toMap())
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

// Stored metadata comes back from backends with numbers as float64 or
// strings and string slices as []any. Decoding must absorb all of it.
func TestDecodeChunkMetadataWeakTypes(t *testing.T) {
	decoded, err := decodeChunkMetadata(map[string]any{
		MetaFileType:   "txt",
		MetaDocTitle:   "weak",
		MetaPageFrom:   "2",
		MetaPageTo:     float64(3),
		MetaChunkIndex: float64(7),
		MetaKeywords:   []any{"alpha", "beta"},
		"source":       "weak.txt", // foreign keys are ignored
	})
	require.NoError(t, err)

	assert.Equal(t, 2, decoded.PageFrom)
	assert.Equal(t, 3, decoded.PageTo)
	assert.Equal(t, 7, decoded.ChunkIndex)
	assert.Equal(t, []string{"alpha", "beta"}, decoded.Keywords)
}
