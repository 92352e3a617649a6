//go:build !windows

package tools

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup places the child in its own process group so Terminate
// reaches everything the tool spawned, not just the direct child. It suits
// commands built without a context.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// ConfigureProcess prepares a command built with exec.CommandContext: its own
// process group, killed as a whole when the context ends.
func ConfigureProcess(cmd *exec.Cmd) {
	SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		return Terminate(cmd)
	}
}

// Terminate kills the process group of a started command.
func Terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
