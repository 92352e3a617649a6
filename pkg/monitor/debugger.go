package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// StreamDebugger dumps raw tool output to debug/chunks/<source>/ so the
// exact bytes a tool produced can be inspected after the fact.
type StreamDebugger struct {
	file    *os.File
	enabled bool
}

// NewStreamDebugger opens a dump file when enabled. Files are nested under
// the request ID found in ctx, if any.
func NewStreamDebugger(ctx context.Context, source string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	safe := filenameSafeRegex.ReplaceAllString(source, "_")
	debugDir := filepath.Join("debug", "chunks", safe)
	if id := RequestID(ctx); id != "" {
		debugDir = filepath.Join("debug", "chunks", safe, filenameSafeRegex.ReplaceAllString(id, "_"))
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &StreamDebugger{}
	}

	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", time.Now().Format("20060102_150405.000")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &StreamDebugger{}
	}

	slog.Debug("Chunk dump enabled", "source", source, "file", filename)
	return &StreamDebugger{file: f, enabled: true}
}

// WriteString appends one chunk followed by a newline.
func (d *StreamDebugger) WriteString(s string) {
	if d == nil || !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.WriteString(s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// Close closes the dump file.
func (d *StreamDebugger) Close() {
	if d != nil && d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
