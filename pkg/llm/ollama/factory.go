package ollama

import (
	"toolbridge/pkg/config"
	"toolbridge/pkg/llm"
)

// OllamaFactory handles creation of Ollama clients
type OllamaFactory struct{}

// Create implements llm.ProviderFactory
func (f *OllamaFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" && sys != nil {
		baseURL = sys.OllamaDefaultURL
	}
	return NewOllamaClient(baseURL, cfg.Options)
}

// KeyEnv is empty: Ollama needs no API key.
func (f *OllamaFactory) KeyEnv() []string {
	return nil
}

func (f *OllamaFactory) DefaultModel() string {
	return "llava"
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
