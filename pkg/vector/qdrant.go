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
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/vectra/pkg/config"
)

// QdrantStore talks to a Qdrant server over gRPC. The collection is
// created on first write with cosine distance, matching the
// normalized vectors produced upstream.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	guard      *dimGuard

	mu      sync.Mutex
	created bool
}

// NewQdrantStore connects to the configured Qdrant server. The
// connection is lazy; a wrong address surfaces on first use.
func NewQdrantStore(cfg *config.DatabaseConfig, dims int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		guard:      newDimGuard("qdrant", dims),
	}, nil
}

// ensureCollection creates the collection once the dimension is known.
func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	s.created = true
	return nil
}

// AddDocuments upserts documents as points keyed by their UUID.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.guard.check(docs); err != nil {
		return storeErr("qdrant", "add", err)
	}
	if err := s.ensureCollection(ctx, s.guard.dim()); err != nil {
		return storeErr("qdrant", "add", err)
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		payload, err := qdrantPayload(doc)
		if err != nil {
			return storeErr("qdrant", "add", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return storeErr("qdrant", "add", err)
	}
	return nil
}

// UpsertDocuments is identical to AddDocuments; Qdrant upserts by
// point ID natively.
func (s *QdrantStore) UpsertDocuments(ctx context.Context, docs []Document) error {
	return s.AddDocuments(ctx, docs)
}

// SimilaritySearch returns the k nearest points. A missing collection
// reads as an empty store.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	req := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = qdrantFilter(filter)
	}

	resp, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		if qdrantNotFound(err) {
			return nil, nil
		}
		return nil, storeErr("qdrant", "search", err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		doc := qdrantDocument(point.GetId(), point.GetPayload())
		results = append(results, SearchResult{Document: doc, Score: point.GetScore()})
	}
	return results, nil
}

// FileExists counts points carrying this exact file fingerprint.
func (s *QdrantStore) FileExists(ctx context.Context, sha256 string, size int64, modTime time.Time) (bool, error) {
	resp, err := s.client.GetPointsClient().Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter: qdrantFilter(map[string]any{
			MetaFileSHA256:   sha256,
			MetaFileSize:     sizeString(size),
			MetaLastModified: modTimeString(modTime),
		}),
	})
	if err != nil {
		if qdrantNotFound(err) {
			return false, nil
		}
		return false, storeErr("qdrant", "file check", err)
	}
	return resp.GetResult().GetCount() > 0, nil
}

// DeleteByID removes points by ID.
func (s *QdrantStore) DeleteByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil && !qdrantNotFound(err) {
		return storeErr("qdrant", "delete", err)
	}
	return nil
}

// DeleteByFilter removes all points matching the filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return nil
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: qdrantFilter(filter),
			},
		},
	})
	if err != nil && !qdrantNotFound(err) {
		return storeErr("qdrant", "delete", err)
	}
	return nil
}

// EnsureIndexes creates the collection ahead of writes when the
// dimension is already known from configuration. Otherwise creation
// waits for the first write.
func (s *QdrantStore) EnsureIndexes(ctx context.Context) error {
	dim := s.guard.dim()
	if dim == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return storeErr("qdrant", "ensure indexes", err)
	}
	return nil
}

// Close closes the gRPC channel.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// qdrantPayload converts document content and metadata to a point
// payload. Content travels under a reserved key.
func qdrantPayload(doc Document) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+1)
	for key, value := range doc.Metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("convert metadata %q: %w", key, err)
		}
		payload[key] = val
	}
	content, err := qdrant.NewValue(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("convert content: %w", err)
	}
	payload["content"] = content
	return payload, nil
}

// qdrantDocument rebuilds a document from a point's ID and payload.
func qdrantDocument(id *qdrant.PointId, payload map[string]*qdrant.Value) Document {
	doc := Document{Metadata: make(map[string]any, len(payload))}

	switch idValue := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		doc.ID = idValue.Uuid
	case *qdrant.PointId_Num:
		doc.ID = fmt.Sprintf("%d", idValue.Num)
	}

	for key, value := range payload {
		doc.Metadata[key] = qdrantValue(value)
	}
	if content, ok := doc.Metadata["content"].(string); ok {
		doc.Content = content
		delete(doc.Metadata, "content")
	}
	return doc
}

// qdrantValue unwraps a payload value into a plain Go value.
func qdrantValue(value *qdrant.Value) any {
	switch v := value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		values := v.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = qdrantValue(item)
		}
		return list
	default:
		return value
	}
}

// qdrantFilter builds a conjunctive keyword filter over payload keys.
func qdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprint(value)},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func qdrantNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "doesn't exist")
}

var (
	_ Store        = (*QdrantStore)(nil)
	_ Upserter     = (*QdrantStore)(nil)
	_ FileChecker  = (*QdrantStore)(nil)
	_ Deleter      = (*QdrantStore)(nil)
	_ IndexEnsurer = (*QdrantStore)(nil)
)
