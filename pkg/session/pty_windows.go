//go:build windows

package session

import (
	"errors"

	"toolbridge/pkg/config"
)

// startPTY is unavailable on Windows; configure such tools with mode "pipe".
func startPTY(tool string, cfg config.ToolConfig, args []string, buffer int, cols, rows uint16) (*process, error) {
	return nil, errors.New("pty mode is not supported on windows")
}
