package embedding

import "fmt"

// NewProvider picks an embedding backend by name.
func NewProvider(name, baseURL, model, apiKey string) (EmbeddingProvider, error) {
	switch name {
	case "", "ollama":
		return NewOllamaProvider(baseURL, model), nil
	case "gemini":
		return NewGeminiProvider(apiKey), nil
	case "jina":
		return NewJinaProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}
