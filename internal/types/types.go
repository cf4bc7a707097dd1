package types

import (
	"context"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
)

// Core interfaces

// Parser turns raw file bytes into per-page text units.
type Parser interface {
	Parse(filename string, data []byte) ([]models.PageUnit, error)
}

// Splitter cuts page text into overlapping chunks, preserving metadata.
type Splitter interface {
	Split(pages []models.PageUnit) []models.Chunk
}

// VectorIndex persists chunks with their embeddings and answers similarity
// queries. Retrieve returns results best-first and may return fewer than k.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedDocument, error)
	Close()
}

// Embedder converts text into vectors for similarity comparison.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text from a prompt, delivering it incrementally through
// onDelta in emission order.
type Generator interface {
	Stream(ctx context.Context, prompt string, onDelta func(string)) error
}
