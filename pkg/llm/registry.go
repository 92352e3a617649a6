package llm

import (
	"context"

	"toolbridge/pkg/config"
)

// ProviderConfig is the resolved connection setting for one provider client.
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Options  map[string]any
}

// Client is a connection to one reasoning provider.
type Client interface {
	// Generate sends the conversation and returns the model's text reply.
	Generate(ctx context.Context, model string, messages []Message) (string, error)
}

// ProviderFactory builds clients for one provider type.
type ProviderFactory interface {
	Create(cfg ProviderConfig, sys *config.SystemConfig) (Client, error)
	// KeyEnv lists environment variables consulted for an API key, in order.
	// An empty list means the provider works without a key.
	KeyEnv() []string
	// DefaultModel is used when a tool sets no model_name.
	DefaultModel() string
}

var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a factory under name. Called from provider
// packages' init functions.
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory looks up a registered factory.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
