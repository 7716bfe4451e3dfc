// Package vectra provides a provider-agnostic retrieval-augmented
// generation engine.
//
// Vectra turns a folder of documents into a question-answering service:
// files are chunked, embedded and stored in a vector database, and
// queries run a configurable pipeline of query rewriting, fused
// retrieval, LLM reranking, context planning and grounded generation.
// Everything is driven by a single YAML configuration.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/vectra/cmd/vectra@latest
//
// Create a configuration:
//
//	embedding:
//	  provider: openai
//	  model: text-embedding-3-small
//	  api_key: "${OPENAI_API_KEY}"
//
//	llm:
//	  provider: anthropic
//	  model: claude-sonnet-4-20250514
//	  api_key: "${ANTHROPIC_API_KEY}"
//
//	database:
//	  type: chromem
//	  persist_path: .vectra/index
//
// Index documents and ask questions:
//
//	vectra ingest ./docs --config vectra.yaml
//	vectra query "What is the refund policy?" --config vectra.yaml
//
// Or serve the engine over HTTP:
//
//	vectra serve --config vectra.yaml
//
// # Using as Go Library
//
// The engine is a plain Go value:
//
//	import (
//	    "github.com/kadirpekel/vectra/pkg/config"
//	    "github.com/kadirpekel/vectra/pkg/rag"
//	)
//
//	cfg, err := config.Load("vectra.yaml")
//	engine, err := rag.New(cfg)
//	defer engine.Close()
//
//	summary, err := engine.Ingest(ctx, "./docs")
//	result, err := engine.Query(ctx, "What is the refund policy?", rag.QueryOptions{})
//
// # Key Features
//
//   - Provider-agnostic: OpenAI, Gemini, Anthropic, OpenRouter,
//     HuggingFace and Ollama backends behind one interface
//   - Pluggable vector stores: chromem (embedded), Qdrant, Pinecone,
//     Postgres/pgvector
//   - Hybrid retrieval: multi-query RRF fusion, HyDE, MMR
//     diversification, LLM reranking
//   - Grounded answers with source attribution and optional
//     strict sentence-level grounding
//   - Conversation memory with in-memory, Redis and SQL backends
//   - Idempotent ingestion with content fingerprints, directory
//     watching, retryable writes
//   - Built-in evaluation harness scoring faithfulness and relevance
//
// # License
//
// Apache-2.0
package vectra
