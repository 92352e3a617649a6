// Package session keeps one long-lived tool process per tool identifier and
// exchanges prompts with it over pipes or a pseudo-terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"toolbridge/pkg/action"
	"toolbridge/pkg/config"
	"toolbridge/pkg/extract"
	"toolbridge/pkg/metrics"
	"toolbridge/pkg/monitor"
	"toolbridge/pkg/tools"
	"toolbridge/pkg/utils"
)

const (
	jsonInstruction = "Respond with a single JSON object only."
	stderrTailLimit = 4096
)

// Options controls timing and buffering of persistent sessions.
type Options struct {
	Deadline     time.Duration
	PollInterval time.Duration
	Buffer       int
	PTYCols      uint16
	PTYRows      uint16
	// PromptDir receives the prompt files handed to pty tools.
	PromptDir   string
	DebugChunks bool
}

// OptionsFromSystem derives Options from the system configuration.
func OptionsFromSystem(sys *config.SystemConfig) Options {
	return Options{
		Deadline:     sys.SessionDeadline(),
		PollInterval: sys.PollInterval(),
		Buffer:       sys.SessionBuffer,
		PTYCols:      uint16(sys.PTYCols),
		PTYRows:      uint16(sys.PTYRows),
		PromptDir:    os.TempDir(),
		DebugChunks:  sys.DebugChunks,
	}
}

// Request is one exchange with a persistent tool.
type Request struct {
	Tool         string
	Config       config.ToolConfig
	ImagePath    string
	Context      string
	SystemPrompt string
}

// slot serializes access to one tool's process. sem has capacity one: the
// holder owns the write-then-await sequence.
type slot struct {
	sem chan struct{}

	mu   sync.Mutex
	proc *process
}

func (s *slot) current() *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *slot) set(p *process) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}

// clear drops p if it is still the slot's process.
func (s *slot) clear(p *process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != p {
		return false
	}
	s.proc = nil
	return true
}

// Manager is the registry of persistent sessions keyed by tool identifier.
type Manager struct {
	opts Options

	mu    sync.Mutex
	slots map[string]*slot
}

// NewManager creates an empty session registry.
func NewManager(opts Options) *Manager {
	if opts.Deadline <= 0 {
		opts.Deadline = 45 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.PTYCols == 0 {
		opts.PTYCols = 200
	}
	if opts.PTYRows == 0 {
		opts.PTYRows = 50
	}
	if opts.PromptDir == "" {
		opts.PromptDir = os.TempDir()
	}
	return &Manager{
		opts:  opts,
		slots: make(map[string]*slot),
	}
}

func (m *Manager) slot(tool string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[tool]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[tool] = s
	}
	return s
}

// Send writes one prompt to the tool's session, starting it if needed, and
// waits for the first parseable JSON object in its output. Concurrent calls
// for the same tool are queued. The system prompt is sent only with the
// first prompt a process receives. The deadline covers the queue wait, the
// write and the wait for output.
func (m *Manager) Send(ctx context.Context, req Request) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Deadline)
	defer cancel()

	s := m.slot(req.Tool)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, action.NewError(action.ProcessTimeout, ctx.Err(), "gave up waiting for session %q", req.Tool)
	}
	defer func() { <-s.sem }()

	p, err := m.ensure(ctx, s, req)
	if err != nil {
		return nil, err
	}

	p.discardStale()

	prime := !p.initialized
	promptFile, err := m.deliver(ctx, p, req, prime)
	if promptFile != "" {
		defer os.Remove(promptFile)
	}
	if err != nil {
		m.drop(s, p)
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "Session input blocked past deadline", "tool", req.Tool)
			return nil, action.NewError(action.ProcessTimeout, err, "session %q did not accept input within %s", req.Tool, m.opts.Deadline)
		}
		return nil, action.NewError(action.ProcessDiedMidRequest, err, "failed to write to session %q", req.Tool)
	}
	p.initialized = true

	result, err := m.await(ctx, p)
	if err != nil && action.KindOf(err) == action.ProcessDiedMidRequest {
		m.drop(s, p)
	}
	return result, err
}

// ensure returns a live process matching req's config, restarting a dead or
// reconfigured one.
func (m *Manager) ensure(ctx context.Context, s *slot, req Request) (*process, error) {
	fp := req.Config.Fingerprint()
	if p := s.current(); p != nil {
		switch {
		case p.exited():
			slog.WarnContext(ctx, "Session process gone, respawning", "tool", req.Tool)
			m.drop(s, p)
		case p.fingerprint != fp:
			slog.InfoContext(ctx, "Session config changed, restarting", "tool", req.Tool)
			m.drop(s, p)
		default:
			return p, nil
		}
	}

	args := tools.Substitute(req.Config.Arguments, tools.Values{SystemPrompt: req.SystemPrompt})
	mode := req.Config.EffectiveMode()

	var p *process
	var err error
	switch mode {
	case config.ModePTY:
		p, err = startPTY(req.Tool, req.Config, args, m.opts.Buffer, m.opts.PTYCols, m.opts.PTYRows)
	default:
		p, err = startPipe(req.Tool, req.Config, args, m.opts.Buffer)
	}
	if err != nil {
		return nil, action.NewError(action.ProcessSpawnFailure, err, "failed to start session %q", req.Tool)
	}
	metrics.SessionSpawnTotal.WithLabelValues(req.Tool, string(mode)).Inc()

	if !m.install(req.Tool, s, p) {
		p.kill()
		return nil, action.NewError(action.ProcessDiedMidRequest, nil, "session %q was reset while starting", req.Tool)
	}
	slog.InfoContext(ctx, "Session started", "tool", req.Tool, "mode", mode, "pid", p.cmd.Process.Pid)
	return p, nil
}

// install stores p in s as long as s is still the registered slot for tool.
// Reset swaps the registry under the same lock, so a process installed here
// is always seen by the next Reset.
func (m *Manager) install(tool string, s *slot, p *process) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[tool] != s {
		return false
	}
	s.set(p)
	metrics.SessionsActive.Inc()
	return true
}

// deliver writes the prompt in the process's mode. For pty tools it returns
// the prompt file path, which the caller removes after the exchange.
func (m *Manager) deliver(ctx context.Context, p *process, req Request, prime bool) (string, error) {
	if p.mode == config.ModePTY {
		path, err := m.writePromptFile(req, prime)
		if err != nil {
			return "", err
		}
		return path, p.write(ctx, "@"+path+"\r")
	}
	return "", p.write(ctx, PipeLine(req, prime))
}

// PipeLine builds the single-line pipe protocol message. Embedded newlines
// are flattened so the tool reads exactly one line per request.
func PipeLine(req Request, prime bool) string {
	parts := make([]string, 0, 4)
	if prime && req.SystemPrompt != "" {
		parts = append(parts, "SYSTEM: "+flatten(req.SystemPrompt))
	}
	parts = append(parts,
		"IMAGE: @"+req.ImagePath,
		"CONTEXT: "+flatten(req.Context),
		jsonInstruction,
	)
	return strings.Join(parts, " ") + "\n"
}

// PromptText builds the multi-line prompt handed to pty tools via a file.
func PromptText(req Request, prime bool) string {
	var sb strings.Builder
	if prime && req.SystemPrompt != "" {
		sb.WriteString("SYSTEM: ")
		sb.WriteString(req.SystemPrompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString("IMAGE: @")
	sb.WriteString(req.ImagePath)
	sb.WriteString("\nCONTEXT: ")
	sb.WriteString(req.Context)
	sb.WriteString("\n\n")
	sb.WriteString(jsonInstruction)
	sb.WriteString("\n")
	return sb.String()
}

func (m *Manager) writePromptFile(req Request, prime bool) (string, error) {
	if err := os.MkdirAll(m.opts.PromptDir, 0755); err != nil {
		return "", fmt.Errorf("prompt dir: %w", err)
	}
	name := fmt.Sprintf("%sprompt_%s.txt", utils.GenerateTimestampPrefix(), utils.GenerateID())
	path, err := filepath.Abs(filepath.Join(m.opts.PromptDir, name))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(PromptText(req, prime)), 0600); err != nil {
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	return path, nil
}

// await performs bounded-timeout receives on the output queue until a JSON
// object is extracted, ctx expires or the process exits. The child is left
// running on timeout.
func (m *Manager) await(ctx context.Context, p *process) (map[string]any, error) {
	debugger := monitor.NewStreamDebugger(ctx, p.tool, m.opts.DebugChunks)
	defer debugger.Close()

	var stderrCh <-chan string
	if p.stderr != nil {
		stderrCh = p.stderr.ch
	}

	var acc strings.Builder
	var stderrTail string
	poll := time.NewTicker(m.opts.PollInterval)
	defer poll.Stop()

	for {
		select {
		case chunk := <-p.stdout.ch:
			debugger.WriteString(chunk)
			acc.WriteString(chunk)
			if obj, ok := extract.Extract(acc.String()); ok {
				return obj, nil
			}

		case chunk := <-stderrCh:
			stderrTail = tail(stderrTail+chunk, stderrTailLimit)
			slog.DebugContext(ctx, "Session stderr", "tool", p.tool, "text", strings.TrimSpace(chunk))

		case <-p.done:
			rest := p.stdout.drain()
			debugger.WriteString(rest)
			acc.WriteString(rest)
			if obj, ok := extract.Extract(acc.String()); ok {
				return obj, nil
			}
			if p.stderr != nil {
				stderrTail = tail(stderrTail+p.stderr.drain(), stderrTailLimit)
			}
			diag := strings.TrimSpace(stderrTail)
			if diag == "" {
				diag = strings.TrimSpace(extract.StripANSI(acc.String()))
			}
			if diag == "" && p.exitErr != nil {
				diag = p.exitErr.Error()
			}
			return nil, action.NewError(action.ProcessDiedMidRequest, nil, "session %q exited: %s",
				p.tool, tail(diag, action.MaxDiagnosticLen))

		case <-poll.C:
			// Nothing new this tick; the loop re-checks liveness and deadline.

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				slog.WarnContext(ctx, "Session deadline exceeded", "tool", p.tool, "deadline", m.opts.Deadline, "received_bytes", acc.Len())
				return nil, action.NewError(action.ProcessTimeout, nil, "session %q produced no JSON within %s", p.tool, m.opts.Deadline)
			}
			return nil, action.NewError(action.ProcessTimeout, ctx.Err(), "session %q request canceled", p.tool)
		}
	}
}

// drop kills p and removes it from s.
func (m *Manager) drop(s *slot, p *process) {
	if s.clear(p) {
		metrics.SessionsActive.Dec()
	}
	p.kill()
}

// Reset kills every session and empties the registry. Requests in flight
// observe their process dying.
func (m *Manager) Reset() {
	m.mu.Lock()
	old := m.slots
	m.slots = make(map[string]*slot)
	m.mu.Unlock()

	for tool, s := range old {
		if p := s.current(); p != nil {
			slog.Info("Stopping session", "tool", tool)
			m.drop(s, p)
		}
	}
}

// Close is Reset under the name used at shutdown.
func (m *Manager) Close() {
	m.Reset()
}

// Active returns the identifiers of tools with a live process.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for tool, s := range m.slots {
		if p := s.current(); p != nil && !p.exited() {
			names = append(names, tool)
		}
	}
	return names
}

var newlineFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return newlineFlattener.Replace(s)
}

// tail keeps the last n bytes of s, moved forward to a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
