package factory

import (
	"fmt"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm/groq"
	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/llm/mistral"
)

func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "mistral":
		return mistral.NewMistralProvider(baseURL, apiKey, modelName), nil
	case "groq":
		return groq.NewGroqProvider(baseURL, apiKey, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
