package gemini

import (
	"context"

	"toolbridge/pkg/config"
	"toolbridge/pkg/llm"
)

// GeminiFactory handles creation of Gemini clients
type GeminiFactory struct{}

// Create implements llm.ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.Client, error) {
	return NewGeminiClient(context.Background(), cfg.APIKey, cfg.BaseURL, cfg.Options)
}

func (f *GeminiFactory) KeyEnv() []string {
	return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
}

func (f *GeminiFactory) DefaultModel() string {
	return "gemini-2.5-flash"
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
