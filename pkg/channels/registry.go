package channels

import (
	"toolbridge/pkg/api"
	"toolbridge/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// ChannelFactory creates a channel from its raw system.json settings.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error)
}

// channelRegistry maps channel names (e.g. "web") to their factories.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a factory. Called from channel packages' init.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered factory by name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
