package web

import (
	"fmt"

	"toolbridge/pkg/api"
	"toolbridge/pkg/channels"
	"toolbridge/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory creates the HTTP/websocket channel.
type WebFactory struct{}

// Create implements channels.ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	cfg := DefaultWebConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	return NewWebChannel(cfg), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
