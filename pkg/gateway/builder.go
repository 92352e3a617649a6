package gateway

import (
	"fmt"

	"toolbridge/pkg/monitor"
)

// GatewayBuilder assembles a GatewayManager from pre-built parts and starts
// it.
type GatewayBuilder struct {
	gw       *GatewayManager
	monitor  monitor.Monitor
	handler  AskHandler
	channels []Channel
}

// NewGatewayBuilder creates a builder around a fresh GatewayManager.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitor. It is started by Build.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithChannel adds pre-built channels.
func (b *GatewayBuilder) WithChannel(channels ...Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithHandler sets the component that answers requests.
func (b *GatewayBuilder) WithHandler(h AskHandler) *GatewayBuilder {
	b.handler = h
	return b
}

// Manager exposes the manager under construction, e.g. for channel loaders.
func (b *GatewayBuilder) Manager() *GatewayManager {
	return b.gw
}

// Build wires the monitor and handler, registers channels and starts them.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if b.handler != nil {
		b.gw.SetHandler(b.handler)
	}

	if err := b.gw.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
