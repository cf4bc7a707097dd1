package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
}

// ChatEngine generates answers from prompts through an Ollama-served model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.5
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	model, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Stream generates a completion for prompt, forwarding each emitted text
// delta to onDelta in emission order. It blocks until the stream ends.
func (ce *ChatEngine) Stream(ctx context.Context, prompt string, onDelta func(string)) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if onDelta != nil {
				onDelta(string(chunk))
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("chat error: %w", err)
	}
	return nil
}
