package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/api"
	"toolbridge/pkg/config"
	"toolbridge/pkg/invoker"
	"toolbridge/pkg/utils"
)

// LastFramePrefix names the copy of the most recent screenshot.
const LastFramePrefix = "last_frame"

// Invoker is the part of invoker.Invoker the handler needs.
type Invoker interface {
	InvokeSelected(ctx context.Context, cfg *config.Config, in invoker.Input) action.Response
	Reset()
}

// BridgeHandler answers gateway requests: it stores the screenshot, reads the
// current tools config and system prompt, and runs the selected tool.
type BridgeHandler struct {
	store   *config.Store
	invoker Invoker
	sys     *config.SystemConfig
}

// NewBridgeHandler creates a handler. A nil sys uses the default system config.
func NewBridgeHandler(store *config.Store, inv Invoker, sys *config.SystemConfig) *BridgeHandler {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	return &BridgeHandler{store: store, invoker: inv, sys: sys}
}

// Ask implements api.AskHandler.
func (h *BridgeHandler) Ask(ctx context.Context, req *api.AskRequest) action.Response {
	cfg, err := h.store.Current()
	if err != nil {
		msg := "cannot load tools config"
		if errors.Is(err, config.ErrConfigMissing) {
			msg = "tools config not found"
		}
		slog.ErrorContext(ctx, "Tools config unavailable", "file", h.store.Path(), "error", err)
		return action.FromError(action.NewError(action.ConfigMissing, err, "%s", msg))
	}
	if name, _, ok := cfg.Selected(); ok {
		req.Tool = name
	}

	prompt := config.LoadSystemPrompt(config.PromptPath(cfg, h.store.Path()))

	imagePath := ""
	if req.Image != nil {
		imagePath, err = h.frame(req.Image)
		if err != nil {
			slog.WarnContext(ctx, "Screenshot not saved, continuing without it", "error", err)
			imagePath = ""
		}
	}

	return h.invoker.InvokeSelected(ctx, cfg, invoker.Input{
		ImagePath:    imagePath,
		Context:      req.Context,
		SystemPrompt: prompt,
		APIKey:       req.APIKey,
	})
}

// Reset implements api.AskHandler.
func (h *BridgeHandler) Reset(ctx context.Context) {
	h.invoker.Reset()
}

// frame returns an absolute path to the attachment on disk.
func (h *BridgeHandler) frame(f *api.FileAttachment) (string, error) {
	if len(f.Data) == 0 {
		if f.Path == "" {
			return "", fmt.Errorf("empty screenshot")
		}
		return filepath.Abs(f.Path)
	}
	path, err := SaveFrame(h.sys.ImageDir, f.Data)
	if err != nil {
		return "", err
	}
	if n := PruneFrames(h.sys.ImageDir, h.sys.ImageRetention()); n > 0 {
		slog.Debug("Pruned old frames", "count", n)
	}
	return path, nil
}

// SaveFrame writes data under dir, named by content hash, and mirrors it to
// last_frame<ext>. A frame with identical content is reused and renamed to a
// fresh timestamp so retention pruning does not remove it while in use. Data
// that is not an image is rejected. The returned path is absolute.
func SaveFrame(dir string, data []byte) (string, error) {
	_, ext, err := utils.SniffImage(data)
	if err != nil {
		return "", fmt.Errorf("reject screenshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	name := utils.ContentName(data, ext)
	path := filepath.Join(dir, name)

	// The 9-char prefix is the timestamp written by ContentName.
	existing, _ := filepath.Glob(filepath.Join(dir, "?????????"+name[9:]))
	reused := false
	for _, old := range existing {
		if old == path {
			reused = true
			break
		}
		if err := os.Rename(old, path); err == nil {
			reused = true
			break
		}
	}
	if !reused {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("save frame: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, LastFramePrefix+ext), data, 0644); err != nil {
		slog.Warn("Failed to update last frame", "error", err)
	}

	return filepath.Abs(path)
}

// PruneFrames deletes timestamped frames in dir older than retention and
// returns how many were removed. A zero retention keeps everything.
func PruneFrames(dir string, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, LastFramePrefix) {
			continue
		}
		if utils.IsOlderThan(name, retention) {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed
}
