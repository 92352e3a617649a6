package openailm

import (
	"toolbridge/pkg/config"
	"toolbridge/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI clients
type OpenAIFactory struct{}

// Create implements llm.ProviderFactory
func (f *OpenAIFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.Client, error) {
	return NewClient(cfg.APIKey, cfg.BaseURL, cfg.Options), nil
}

func (f *OpenAIFactory) KeyEnv() []string {
	return []string{"OPENAI_API_KEY"}
}

func (f *OpenAIFactory) DefaultModel() string {
	return "gpt-4o-mini"
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
