package azure

import (
	"toolbridge/pkg/config"
	"toolbridge/pkg/llm"
)

// AzureFactory handles creation of Azure OpenAI clients
type AzureFactory struct{}

// Create implements llm.ProviderFactory
func (f *AzureFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.Client, error) {
	return NewClient(cfg.BaseURL, cfg.APIKey, cfg.Options)
}

func (f *AzureFactory) KeyEnv() []string {
	return []string{"AZURE_OPENAI_API_KEY"}
}

// DefaultModel is empty: a deployment name must be configured.
func (f *AzureFactory) DefaultModel() string {
	return ""
}

func init() {
	llm.RegisterProvider("azure", &AzureFactory{})
}
