package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"toolbridge/pkg/config"
	"toolbridge/pkg/tools"
)

// readerGrace bounds how long exit handling waits for readers to flush output
// still buffered in the OS pipe after the child exits.
const readerGrace = time.Second

// process is one long-lived tool child and its output queues. Fields other
// than done/exitErr are owned by whoever holds the tool's slot.
type process struct {
	tool        string
	fingerprint string
	mode        config.Mode

	cmd   *exec.Cmd
	input io.Writer
	// closers are released on kill: stdin pipe, pty master.
	closers []io.Closer

	stdout *stream
	// stderr is nil in pty mode where both streams share the terminal.
	stderr *stream

	// initialized is set once the system prompt has been written.
	initialized bool

	done     chan struct{}
	exitErr  error
	killOnce sync.Once
}

// startPipe launches cfg's command with stdin/stdout/stderr pipes.
func startPipe(tool string, cfg config.ToolConfig, args []string, buffer int) (*process, error) {
	cmd := exec.Command(cfg.Command, args...)
	tools.SetProcessGroup(cmd)
	cmd.Env = tools.MergeEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, err
	}
	// The child holds its own copies; closing ours lets readers see EOF.
	outW.Close()
	errW.Close()

	p := &process{
		tool:        tool,
		fingerprint: cfg.Fingerprint(),
		mode:        config.ModePipe,
		cmd:         cmd,
		input:       stdin,
		closers:     []io.Closer{stdin},
		stdout:      newStream(buffer),
		stderr:      newStream(buffer),
		done:        make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		defer outR.Close()
		pump(tool, "stdout", outR, p.stdout, p.done)
	}()
	go func() {
		defer readers.Done()
		defer errR.Close()
		pump(tool, "stderr", errR, p.stderr, p.done)
	}()

	go p.wait(&readers)
	return p, nil
}

// wait reaps the child, gives readers a moment to flush, then signals done.
func (p *process) wait(readers *sync.WaitGroup) {
	err := p.cmd.Wait()

	flushed := make(chan struct{})
	go func() {
		readers.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(readerGrace):
	}

	p.exitErr = err
	slog.Info("Session process exited", "tool", p.tool, "pid", p.cmd.Process.Pid, "error", err)
	close(p.done)
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// write sends data to the child's input. A child that stops reading cannot
// hold the caller past ctx or its own exit; the pending write is released
// when the process is killed.
func (p *process) write(ctx context.Context, data string) error {
	errc := make(chan error, 1)
	go func() {
		_, err := io.WriteString(p.input, data)
		errc <- err
	}()
	select {
	case err := <-errc:
		return err
	case <-p.done:
		select {
		case err := <-errc:
			return err
		default:
			return errors.New("process exited before reading input")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discardStale drops output left over from an earlier request, typically one
// that timed out before the tool finished answering.
func (p *process) discardStale() {
	stale := p.stdout.drain()
	if p.stderr != nil {
		stale += p.stderr.drain()
	}
	if stale != "" {
		slog.Debug("Discarded stale session output", "tool", p.tool, "bytes", len(stale))
	}
}

// kill terminates the child and releases its handles.
func (p *process) kill() {
	p.killOnce.Do(func() {
		for _, c := range p.closers {
			c.Close()
		}
		if err := tools.Terminate(p.cmd); err != nil {
			slog.Debug("Session terminate failed", "tool", p.tool, "error", err)
		}
	})
}
