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
	"fmt"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/vectra/pkg/config"
)

// PineconeStore talks to a hosted Pinecone index. The index itself
// must exist already; Pinecone index creation is an account-level
// operation outside this store's reach.
type PineconeStore struct {
	client    *pinecone.Client
	indexName string
	namespace string
	guard     *dimGuard

	mu   sync.Mutex
	conn *pinecone.IndexConnection
	dim  int
}

// NewPineconeStore creates a store bound to the configured index.
func NewPineconeStore(cfg *config.DatabaseConfig, dims int) (*PineconeStore, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone: create client: %w", err)
	}
	return &PineconeStore{
		client:    client,
		indexName: cfg.Collection,
		namespace: cfg.Namespace,
		guard:     newDimGuard("pinecone", dims),
		dim:       dims,
	}, nil
}

// connection resolves the index host once and reuses the connection.
func (s *PineconeStore) connection(ctx context.Context) (*pinecone.IndexConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	index, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("describe index %q: %w", s.indexName, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      index.Host,
		Namespace: s.namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to index %q: %w", s.indexName, err)
	}
	s.conn = conn
	if s.dim == 0 {
		s.dim = int(index.Dimension)
	}
	return conn, nil
}

// AddDocuments upserts documents as vectors keyed by their UUID.
func (s *PineconeStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.guard.check(docs); err != nil {
		return storeErr("pinecone", "add", err)
	}
	conn, err := s.connection(ctx)
	if err != nil {
		return storeErr("pinecone", "add", err)
	}

	vectors := make([]*pinecone.Vector, 0, len(docs))
	for _, doc := range docs {
		metadata, err := pineconeMetadata(doc)
		if err != nil {
			return storeErr("pinecone", "add", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       doc.ID,
			Values:   doc.Embedding,
			Metadata: metadata,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return storeErr("pinecone", "add", err)
	}
	return nil
}

// UpsertDocuments is identical to AddDocuments; Pinecone upserts by
// vector ID natively.
func (s *PineconeStore) UpsertDocuments(ctx context.Context, docs []Document) error {
	return s.AddDocuments(ctx, docs)
}

// SimilaritySearch queries the index for the k nearest vectors.
func (s *PineconeStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, storeErr("pinecone", "search", err)
	}

	metadataFilter, err := pineconeFilter(filter)
	if err != nil {
		return nil, storeErr("pinecone", "search", err)
	}
	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(k),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, storeErr("pinecone", "search", err)
	}

	results := make([]SearchResult, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		doc := Document{ID: match.Vector.Id, Metadata: make(map[string]any)}
		if match.Vector.Metadata != nil {
			for key, value := range match.Vector.Metadata.AsMap() {
				doc.Metadata[key] = value
			}
		}
		if content, ok := doc.Metadata["content"].(string); ok {
			doc.Content = content
			delete(doc.Metadata, "content")
		}
		results = append(results, SearchResult{Document: doc, Score: match.Score})
	}
	return results, nil
}

// FileExists queries for any vector carrying this exact file
// fingerprint. Pinecone queries require a vector, so a unit probe of
// the index dimension stands in; the metadata filter does the work.
func (s *PineconeStore) FileExists(ctx context.Context, sha256 string, size int64, modTime time.Time) (bool, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return false, storeErr("pinecone", "file check", err)
	}

	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()
	if dim == 0 {
		return false, nil
	}
	probe := make([]float32, dim)
	probe[0] = 1

	filter, err := pineconeFilter(map[string]any{
		MetaFileSHA256:   sha256,
		MetaFileSize:     sizeString(size),
		MetaLastModified: modTimeString(modTime),
	})
	if err != nil {
		return false, storeErr("pinecone", "file check", err)
	}
	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:         probe,
		TopK:           1,
		MetadataFilter: filter,
	})
	if err != nil {
		return false, storeErr("pinecone", "file check", err)
	}
	return len(resp.Matches) > 0, nil
}

// DeleteByID removes vectors by ID.
func (s *PineconeStore) DeleteByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := s.connection(ctx)
	if err != nil {
		return storeErr("pinecone", "delete", err)
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return storeErr("pinecone", "delete", err)
	}
	return nil
}

// DeleteByFilter removes all vectors matching the filter. Not every
// Pinecone index type supports filtered deletes; the API error
// surfaces unchanged.
func (s *PineconeStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return nil
	}
	conn, err := s.connection(ctx)
	if err != nil {
		return storeErr("pinecone", "delete", err)
	}
	metadataFilter, err := pineconeFilter(filter)
	if err != nil {
		return storeErr("pinecone", "delete", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, metadataFilter); err != nil {
		return storeErr("pinecone", "delete", err)
	}
	return nil
}

// EnsureIndexes verifies the index exists and is reachable.
func (s *PineconeStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.connection(ctx); err != nil {
		return storeErr("pinecone", "ensure indexes",
			fmt.Errorf("index %q must be created via the Pinecone console or API: %w", s.indexName, err))
	}
	return nil
}

// Close closes the index connection if one was established.
func (s *PineconeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// pineconeMetadata converts document content and metadata into a
// protobuf struct. String slices become generic lists first; structpb
// rejects them otherwise.
func pineconeMetadata(doc Document) (*pinecone.Metadata, error) {
	fields := make(map[string]any, len(doc.Metadata)+1)
	for key, value := range doc.Metadata {
		fields[key] = structpbSafe(value)
	}
	fields["content"] = doc.Content
	metadata, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert metadata: %w", err)
	}
	return metadata, nil
}

func pineconeFilter(filter map[string]any) (*pinecone.MetadataFilter, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(filter))
	for key, value := range filter {
		fields[key] = structpbSafe(value)
	}
	metadataFilter, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert filter: %w", err)
	}
	return metadataFilter, nil
}

func structpbSafe(value any) any {
	switch v := value.(type) {
	case []string:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = item
		}
		return list
	default:
		return value
	}
}

var (
	_ Store        = (*PineconeStore)(nil)
	_ Upserter     = (*PineconeStore)(nil)
	_ FileChecker  = (*PineconeStore)(nil)
	_ Deleter      = (*PineconeStore)(nil)
	_ IndexEnsurer = (*PineconeStore)(nil)
)
