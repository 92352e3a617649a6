//go:build !windows

package session

import (
	"io"
	"os/exec"
	"sync"

	"toolbridge/pkg/config"
	"toolbridge/pkg/tools"

	"github.com/creack/pty"
)

// startPTY launches cfg's command attached to a new pseudo-terminal. Output
// from both streams arrives through the terminal master.
func startPTY(tool string, cfg config.ToolConfig, args []string, buffer int, cols, rows uint16) (*process, error) {
	cmd := exec.Command(cfg.Command, args...)
	cmd.Env = append(tools.MergeEnv(cfg.Env), "TERM=xterm-256color")

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}

	p := &process{
		tool:        tool,
		fingerprint: cfg.Fingerprint(),
		mode:        config.ModePTY,
		cmd:         cmd,
		input:       master,
		closers:     []io.Closer{master},
		stdout:      newStream(buffer),
		done:        make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		pump(tool, "pty", master, p.stdout, p.done)
	}()

	go p.wait(&readers)
	return p, nil
}
