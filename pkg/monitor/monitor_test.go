package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithRequestID(context.Background(), "req-1")
	logger.With("tool", "cli").WithGroup("proc").InfoContext(ctx, "spawned", "pid", 42, "wait", 1500*time.Microsecond)

	line := buf.String()
	assert.Contains(t, line, "[INFO] [req-1] spawned")
	assert.Contains(t, line, `tool="cli"`)
	assert.Contains(t, line, "proc.pid=42")
	assert.Contains(t, line, "proc.wait=2ms")
}

func TestCustomHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: ParseLevel("warn")}))
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] shown")
}

func TestCLIMonitor(t *testing.T) {
	var buf bytes.Buffer
	m := NewCLIMonitorTo(&buf)
	m.OnEvent(Event{Timestamp: time.Now(), Kind: EventRequest, ChannelID: "web", RequestID: "r1", Content: "menu"})
	m.OnEvent(Event{Timestamp: time.Now(), Kind: EventDecision, Tool: "mock", Content: "Click", Failed: true})
	out := buf.String()
	assert.Contains(t, out, "[web/r1] menu")
	assert.Contains(t, out, "(mock) Click")
	assert.Contains(t, out, "[AI!]")
}

func TestRequestID_Empty(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}
