package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/monitor"

	"github.com/google/uuid"
)

// GatewayManager owns the registered channels and routes their requests to
// the handler.
type GatewayManager struct {
	channels map[string]Channel
	handler  AskHandler
	monitor  monitor.Monitor
	mu       sync.RWMutex
}

// NewGatewayManager creates an empty GatewayManager.
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]Channel),
	}
}

// SetHandler sets the component that answers requests.
func (g *GatewayManager) SetHandler(h AskHandler) {
	g.handler = h
}

// SetMonitor sets the event monitor.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel, replacing any with the same ID.
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns a registered channel.
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// ChannelIDs lists registered channel IDs in order.
func (g *GatewayManager) ChannelIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.channels))
	for id := range g.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartAll starts every registered channel.
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every registered channel.
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

// Ask implements ChannelContext. It tags the request with an ID, reports it
// to the monitor and returns the handler's decision.
func (g *GatewayManager) Ask(ctx context.Context, req *AskRequest) action.Response {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()[:8]
	}
	ctx = monitor.WithRequestID(ctx, req.RequestID)

	slog.InfoContext(ctx, "Request received",
		"channel", req.Session.ChannelID, "client", req.Session.ClientID,
		"context", action.Truncate(req.Context, 80), "image", req.Image != nil)
	g.emit(monitor.Event{
		Kind:      monitor.EventRequest,
		ChannelID: req.Session.ChannelID,
		RequestID: req.RequestID,
		Content:   req.Context,
	})

	var resp action.Response
	if g.handler == nil {
		slog.WarnContext(ctx, "No handler set")
		resp = action.ErrorResponse("no handler configured")
	} else {
		resp = g.handler.Ask(ctx, req)
	}

	g.emit(monitor.Event{
		Kind:      monitor.EventDecision,
		ChannelID: req.Session.ChannelID,
		RequestID: req.RequestID,
		Tool:      req.Tool,
		Content:   describe(resp),
		Failed:    resp.IsError(),
	})
	return resp
}

// Reset implements ChannelContext.
func (g *GatewayManager) Reset(ctx context.Context, channelID string) {
	slog.InfoContext(ctx, "Reset requested", "channel", channelID)
	if g.handler != nil {
		g.handler.Reset(ctx)
	}
	g.emit(monitor.Event{Kind: monitor.EventReset, ChannelID: channelID})
}

func (g *GatewayManager) emit(ev monitor.Event) {
	if g.monitor == nil {
		return
	}
	ev.Timestamp = time.Now()
	g.monitor.OnEvent(ev)
}

func describe(r action.Response) string {
	if r.IsError() {
		return r.Thought
	}
	return fmt.Sprintf("%s %s", r.ActionType, r.Thought)
}
