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

// Package rag is the orchestration core: it ingests documents
// (load, chunk, embed, persist) and answers questions through a
// configurable pipeline of query rewriting, retrieval, fusion,
// reranking, context planning, grounding and generation.
//
// The Engine ties the stages together. Each stage is also usable on
// its own: the chunkers, the RRF/MMR fusion helpers, the context
// planner and the grounding selector are plain functions or small
// structs with no hidden state beyond what their constructors take.
//
// Ingestion is content addressed. Chunk ids are UUIDv5 values derived
// from the file's SHA-256 and the chunk index, so re-ingesting an
// unchanged file is a no-op in skip mode and an exact overwrite in
// replace mode.
package rag
