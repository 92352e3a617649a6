package channels

import (
	"log/slog"

	"toolbridge/pkg/config"
	"toolbridge/pkg/gateway"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig creates every configured channel with a registered factory
// and adds it to the builder. It returns the number of channels added.
func LoadFromConfig(b *gateway.GatewayBuilder, configs map[string]jsoniter.RawMessage, system *config.SystemConfig) int {
	added := 0
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		b.WithChannel(channel)
		added++
		slog.Info("Channel registered", "name", name)
	}
	return added
}
