package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string  `yaml:"url"`
		TableName string  `yaml:"table_name"`
		VectorDim int     `yaml:"vector_dim"`
		BatchSize int     `yaml:"batch_size"`
		EmbedRate float64 `yaml:"embed_rate"`
	} `yaml:"database"`

	Splitter struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"splitter"`

	Retrieval struct {
		TopK int `yaml:"top_k"`
	} `yaml:"retrieval"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/rag-chatbot/config.yaml"),
			"/etc/rag-chatbot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.5
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 64
	}
	if config.Database.EmbedRate == 0 {
		config.Database.EmbedRate = 8
	}

	if config.Splitter.ChunkSize == 0 {
		config.Splitter.ChunkSize = 300
	}
	if config.Splitter.ChunkOverlap == 0 {
		config.Splitter.ChunkOverlap = 100
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
