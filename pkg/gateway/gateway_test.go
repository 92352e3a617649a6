package gateway

import (
	"context"
	"sync"
	"testing"

	"toolbridge/pkg/action"
	"toolbridge/pkg/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMonitor struct {
	mu      sync.Mutex
	started bool
	events  []monitor.Event
}

func (m *recordingMonitor) Start() error { m.started = true; return nil }
func (m *recordingMonitor) Stop() error  { return nil }
func (m *recordingMonitor) OnEvent(ev monitor.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

type fakeHandler struct {
	gotRequestID string
	resets       int
	resp         action.Response
}

func (h *fakeHandler) Ask(ctx context.Context, req *AskRequest) action.Response {
	h.gotRequestID = monitor.RequestID(ctx)
	req.Tool = "cli"
	return h.resp
}

func (h *fakeHandler) Reset(ctx context.Context) { h.resets++ }

type fakeChannel struct {
	id      string
	ctx     ChannelContext
	stopped bool
}

func (c *fakeChannel) ID() string                      { return c.id }
func (c *fakeChannel) Start(ctx ChannelContext) error { c.ctx = ctx; return nil }
func (c *fakeChannel) Stop() error                     { c.stopped = true; return nil }

func TestBuild_WiresEverything(t *testing.T) {
	mon := &recordingMonitor{}
	h := &fakeHandler{resp: action.Response{Thought: "go", ActionType: action.TypeClick, Duration: 1}}
	ch := &fakeChannel{id: "web"}

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithHandler(h).
		WithChannel(ch).
		Build()
	require.NoError(t, err)
	assert.True(t, mon.started)
	assert.Equal(t, []string{"web"}, gw.ChannelIDs())
	require.NotNil(t, ch.ctx, "channel started with the gateway as context")

	req := &AskRequest{Session: SessionContext{ChannelID: "web"}, Context: "menu"}
	resp := ch.ctx.Ask(context.Background(), req)
	assert.Equal(t, action.TypeClick, resp.ActionType)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, req.RequestID, h.gotRequestID)

	require.Len(t, mon.events, 2)
	assert.Equal(t, monitor.EventRequest, mon.events[0].Kind)
	assert.Equal(t, "menu", mon.events[0].Content)
	assert.Equal(t, monitor.EventDecision, mon.events[1].Kind)
	assert.Equal(t, "cli", mon.events[1].Tool)
	assert.False(t, mon.events[1].Failed)

	ch.ctx.Reset(context.Background(), "web")
	assert.Equal(t, 1, h.resets)
	assert.Equal(t, monitor.EventReset, mon.events[2].Kind)

	gw.StopAll()
	assert.True(t, ch.stopped)
}

func TestAsk_NoHandler(t *testing.T) {
	gw := NewGatewayManager()
	resp := gw.Ask(context.Background(), &AskRequest{RequestID: "fixed"})
	assert.True(t, resp.IsError())
}
