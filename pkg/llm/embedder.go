package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig represents the configuration for an embedding model.
type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder converts text into vectors through an Ollama embedding model.
type Embedder struct {
	config EmbedderConfig
	impl   *embeddings.EmbedderImpl
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	client, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{config: config, impl: impl}, nil
}

// EmbedDocuments embeds each text, returning one vector per input in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.impl.EmbedDocuments(ctx, texts)
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.impl.EmbedQuery(ctx, text)
}
