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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/vectra/pkg/config"
)

func TestFileFingerprint(t *testing.T) {
	modTime := time.Date(2025, 5, 14, 10, 30, 0, 0, time.UTC)
	fp := FileFingerprint("abc123", "def456", 2048, modTime)

	assert.Equal(t, map[string]any{
		MetaFileMD5:      "abc123",
		MetaFileSHA256:   "def456",
		MetaFileSize:     "2048",
		MetaLastModified: "2025-05-14T10:30:00Z",
	}, fp)
}

func TestFileFingerprintNormalizesZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2025, 5, 14, 13, 30, 0, 500, loc)
	fp := FileFingerprint("a", "b", 1, local)
	assert.Equal(t, "2025-05-14T10:30:00.0000005Z", fp[MetaLastModified])
}

func TestDimGuardLearnsFromFirstWrite(t *testing.T) {
	guard := newDimGuard("test", 0)
	require.NoError(t, guard.check([]Document{{ID: "a", Embedding: []float32{1, 0, 0}}}))
	assert.Equal(t, 3, guard.dim())

	err := guard.check([]Document{{ID: "b", Embedding: []float32{1, 0}}})
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "test", mismatch.Store)
	assert.Equal(t, 3, mismatch.Want)
	assert.Equal(t, 2, mismatch.Got)
}

func TestDimGuardConfiguredDimension(t *testing.T) {
	guard := newDimGuard("test", 1536)
	err := guard.check([]Document{{ID: "a", Embedding: []float32{1, 0}}})
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1536, mismatch.Want)
}

func TestDimGuardRejectsMissingEmbedding(t *testing.T) {
	guard := newDimGuard("test", 0)
	err := guard.check([]Document{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding")
}

func TestNewStore(t *testing.T) {
	chromemCfg := testChromemConfig("")
	store, err := New(chromemCfg, 0)
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)

	postgresCfg := &config.DatabaseConfig{
		Type: config.DatabasePostgres,
		DSN:  "postgres://localhost/vectra_test?sslmode=disable",
	}
	postgresCfg.SetDefaults()
	store, err = New(postgresCfg, 0)
	require.NoError(t, err)
	assert.IsType(t, &PostgresStore{}, store)

	_, err = New(&config.DatabaseConfig{Type: "milvus"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database type")

	_, err = New(nil, 0)
	require.Error(t, err)
}

func TestCapabilityDiscovery(t *testing.T) {
	var store Store = newTestChromem(t)

	_, ok := store.(Upserter)
	assert.True(t, ok)
	_, ok = store.(FileChecker)
	assert.True(t, ok)
	_, ok = store.(Deleter)
	assert.True(t, ok)
	_, ok = store.(HybridSearcher)
	assert.False(t, ok, "chromem has no native hybrid search; callers fall back to similarity")
	_, ok = store.(Lister)
	assert.False(t, ok)
	_, ok = store.(IndexEnsurer)
	assert.False(t, ok)
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := assert.AnError
	err := storeErr("chromem", "add", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "chromem: add: "+cause.Error(), err.Error())

	assert.NoError(t, storeErr("chromem", "add", nil))
}
