//go:build windows

package tools

import (
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// SetProcessGroup hides the console window of the tool and detaches it into
// a new process group so console signals aimed at the bridge do not reach it.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNewProcessGroup,
	}
}

// ConfigureProcess prepares a command built with exec.CommandContext.
func ConfigureProcess(cmd *exec.Cmd) {
	SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		return Terminate(cmd)
	}
}

// Terminate kills a started command.
func Terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
