package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Health verifies the backend is reachable. Used by readiness probes.
	Health(ctx context.Context) error

	// Name identifies the backend ("ollama", "openai", "anthropic").
	Name() string
}

// NewClientFromEnv builds an LLMClient from the CLUSTERBUDDY_LLM_PROVIDER
// environment variable. Unset or empty defaults to "ollama".
func NewClientFromEnv() (LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("CLUSTERBUDDY_LLM_PROVIDER")))
	switch provider {
	case "", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	case "anthropic":
		return NewAnthropicClient()
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want ollama, openai, or anthropic)", provider)
	}
}
