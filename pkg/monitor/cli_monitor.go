package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// CLIMonitor implements the Monitor interface, printing every request and
// the decision returned for it to the terminal.
type CLIMonitor struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewCLIMonitor creates a CLI monitor writing to stdout.
func NewCLIMonitor() *CLIMonitor {
	return NewCLIMonitorTo(os.Stdout)
}

// NewCLIMonitorTo creates a CLI monitor writing to w.
func NewCLIMonitorTo(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "Tool bridge monitor active - requests and decisions appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

// OnEvent prints one line per event.
func (m *CLIMonitor) OnEvent(ev Event) {
	timestamp := ev.Timestamp.Format("2006-01-02 15:04:05")

	var line string
	switch ev.Kind {
	case EventDecision:
		marker := "[AI]"
		if ev.Failed {
			marker = "\033[31m[AI!]\033[0m"
		}
		line = fmt.Sprintf("%s (%s) %s", marker, ev.Tool, ev.Content)
	case EventReset:
		line = "[reset] " + ev.Content
	default:
		line = fmt.Sprintf("[%s/%s] %s", ev.ChannelID, ev.RequestID, ev.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Use gray color for timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, line)
}
