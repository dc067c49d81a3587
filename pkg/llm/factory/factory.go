package factory

import (
	"context"
	"fmt"

	"legal-assistant-be/pkg/llm"
	"legal-assistant-be/pkg/llm/anthropic"
	"legal-assistant-be/pkg/llm/gemini"
	"legal-assistant-be/pkg/llm/huggingface"
	"legal-assistant-be/pkg/llm/ollama"
)

// Settings selects and configures one backend.
type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(ctx context.Context, s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "ollama", "":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, s.Model), nil
	case "huggingface", "openai":
		return huggingface.NewHuggingFaceProvider(s.APIKey, s.BaseURL, s.Model), nil
	case "anthropic":
		return anthropic.NewAnthropicProvider(s.APIKey, s.Model), nil
	case "gemini":
		return gemini.NewGeminiProvider(ctx, s.APIKey, s.Model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
