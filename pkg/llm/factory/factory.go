package factory

import (
	"fmt"

	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm/ollama"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm/openai"
)

func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewOpenAIProvider(baseURL, apiKey, modelName), nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
