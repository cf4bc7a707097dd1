package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434"
  model: "llama3"
  embed_model: "nomic-embed-text:latest"
  max_tokens: 1000
  temperature: 0.5

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_docs"
  vector_dim: 768
  batch_size: 50
  embed_rate: 4

splitter:
  chunk_size: 500
  chunk_overlap: 100

retrieval:
  top_k: 3

server:
  host: "127.0.0.1"
  port: 9000
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "test_docs", config.Database.TableName)
	assert.Equal(t, 50, config.Database.BatchSize)
	assert.Equal(t, 500, config.Splitter.ChunkSize)
	assert.Equal(t, 100, config.Splitter.ChunkOverlap)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Equal(t, 9000, config.Server.Port)
}

func TestLoadConfig_appliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  model: mistral\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 300, config.Splitter.ChunkSize)
	assert.Equal(t, 100, config.Splitter.ChunkOverlap)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, "documents", config.Database.TableName)
	assert.Equal(t, 8000, config.Server.Port)
}

func TestConfigValidation(t *testing.T) {
	valid, err := getDefaultConfig()
	require.NoError(t, err)
	assert.Empty(t, valid.Validate())

	broken, err := getDefaultConfig()
	require.NoError(t, err)
	broken.LLM.MaxTokens = 5000    // Invalid
	broken.LLM.Temperature = 3.0   // Invalid
	broken.Database.VectorDim = -1 // Invalid

	errors := broken.Validate()
	require.Len(t, errors, 3)
	assert.Contains(t, errors[0].Error(), "max_tokens must be between 1 and 4096")
	assert.Contains(t, errors[1].Error(), "temperature must be between 0 and 2")
	assert.Contains(t, errors[2].Error(), "vector_dim must be positive")
}

func TestConfigValidation_overlapAtLeastChunkSize(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)
	config.Splitter.ChunkSize = 100
	config.Splitter.ChunkOverlap = 100

	errors := config.Validate()
	require.Len(t, errors, 1)
	assert.Equal(t, "splitter.chunk_overlap", errors[0].Field)
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	os.Setenv("PORT", "8123")
	defer func() {
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("PORT")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, 8123, config.Server.Port)
}
