// Package invoker routes one reasoning request to the configured tool and
// turns whatever it produced into an action.Response.
package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/config"
	"toolbridge/pkg/extract"
	"toolbridge/pkg/llm"
	"toolbridge/pkg/metrics"
	"toolbridge/pkg/monitor"
	"toolbridge/pkg/session"
	"toolbridge/pkg/tools"
)

// BridgeToolEnv carries the tool identifier to terminal bridge scripts.
const BridgeToolEnv = "TOOLBRIDGE_TOOL"

// OneShotRunner runs a single process per request.
type OneShotRunner interface {
	Run(ctx context.Context, c tools.Command) (string, error)
}

// SessionSender exchanges requests with long-lived tool processes.
type SessionSender interface {
	Send(ctx context.Context, req session.Request) (map[string]any, error)
	Reset()
	Close()
}

// Engine answers requests in-process through a provider SDK.
type Engine interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
	Reset()
}

// Request is one invocation of a resolved tool.
type Request struct {
	Tool         string
	Config       config.ToolConfig
	ImagePath    string
	Context      string
	SystemPrompt string
	// APIKey overrides the tool's key for in-process tools.
	APIKey string
}

// Input is the per-request data of InvokeSelected.
type Input struct {
	ImagePath    string
	Context      string
	SystemPrompt string
	APIKey       string
}

// Invoker dispatches requests by tool kind.
type Invoker struct {
	sys      *config.SystemConfig
	oneshot  OneShotRunner
	sessions SessionSender
	engine   Engine
}

// New creates an Invoker backed by the real executor, session manager and
// engine. A nil sys uses the default system config.
func New(sys *config.SystemConfig) *Invoker {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	return NewWith(sys,
		tools.NewExecutor(sys.OneShotTimeout()),
		session.NewManager(session.OptionsFromSystem(sys)),
		llm.NewEngine(sys),
	)
}

// NewWith creates an Invoker from explicit strategies.
func NewWith(sys *config.SystemConfig, oneshot OneShotRunner, sessions SessionSender, engine Engine) *Invoker {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	return &Invoker{sys: sys, oneshot: oneshot, sessions: sessions, engine: engine}
}

// InvokeSelected runs the tool named by cfg.SelectedTool.
func (i *Invoker) InvokeSelected(ctx context.Context, cfg *config.Config, in Input) action.Response {
	name, tool, ok := cfg.Selected()
	if !ok {
		selected := ""
		if cfg != nil {
			selected = cfg.SelectedTool
		}
		err := action.NewError(action.ToolNotConfigured, nil, "selected tool %q is not configured", selected)
		slog.WarnContext(ctx, "Invocation rejected", "tool", selected, "error", err)
		metrics.InvocationTotal.WithLabelValues(selected, "none", string(action.ToolNotConfigured)).Inc()
		return action.FromError(err)
	}
	return i.Invoke(ctx, Request{
		Tool:         name,
		Config:       tool,
		ImagePath:    in.ImagePath,
		Context:      in.Context,
		SystemPrompt: in.SystemPrompt,
		APIKey:       in.APIKey,
	})
}

// Invoke runs req and always returns a complete response. Failures are
// reported as error responses.
func (i *Invoker) Invoke(ctx context.Context, req Request) action.Response {
	kind := req.Config.EffectiveKind()
	start := time.Now()

	resp, err := i.invoke(ctx, req, kind)
	elapsed := time.Since(start)
	metrics.InvocationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	if err != nil {
		metrics.InvocationTotal.WithLabelValues(req.Tool, string(kind), string(action.KindOf(err))).Inc()
		slog.ErrorContext(ctx, "Invocation failed", "tool", req.Tool, "kind", kind, "elapsed", elapsed, "error", err)
		return action.FromError(err)
	}

	metrics.InvocationTotal.WithLabelValues(req.Tool, string(kind), "ok").Inc()
	slog.InfoContext(ctx, "Invocation done", "tool", req.Tool, "kind", kind, "action", resp.ActionType, "elapsed", elapsed)
	return resp
}

func (i *Invoker) invoke(ctx context.Context, req Request, kind config.Kind) (action.Response, error) {
	if err := req.Config.Validate(); err != nil {
		return action.Response{}, action.NewError(action.ToolNotConfigured, err, "tool %q", req.Tool)
	}

	raw, err := i.raw(ctx, req, kind)
	if err != nil {
		return action.Response{}, err
	}

	m, ok := extract.Extract(raw)
	if !ok {
		return action.Response{}, action.NewError(action.ParseFailure, nil,
			"no JSON object in %s output: %s", req.Tool, action.Truncate(fmt.Sprint(raw), action.MaxDiagnosticLen))
	}
	return action.Normalize(m), nil
}

// raw runs the strategy for kind and returns its unparsed output, either
// text or an already extracted object.
func (i *Invoker) raw(ctx context.Context, req Request, kind config.Kind) (any, error) {
	values := tools.Values{
		ImagePath:    req.ImagePath,
		Context:      req.Context,
		SystemPrompt: req.SystemPrompt,
	}

	switch kind {
	case config.KindInternal:
		return i.engine.Invoke(ctx, llm.Request{
			Tool:         req.Tool,
			Config:       req.Config,
			ImagePath:    req.ImagePath,
			Context:      req.Context,
			SystemPrompt: req.SystemPrompt,
			APIKey:       req.APIKey,
		})

	case config.KindTerminalBridge:
		bridge := i.sys.TerminalBridge
		env := make(map[string]string, len(req.Config.Env)+1)
		for k, v := range req.Config.Env {
			env[k] = v
		}
		env[BridgeToolEnv] = req.Tool
		return i.runOneShot(ctx, tools.Command{
			Tool: req.Tool,
			Path: bridge.Command,
			Args: tools.Substitute(bridge.Arguments, values),
			Env:  env,
		})

	case config.KindPersistent:
		return i.sessions.Send(ctx, session.Request{
			Tool:         req.Tool,
			Config:       req.Config,
			ImagePath:    req.ImagePath,
			Context:      req.Context,
			SystemPrompt: req.SystemPrompt,
		})

	default:
		return i.runOneShot(ctx, tools.Command{
			Tool: req.Tool,
			Path: req.Config.Command,
			Args: tools.Substitute(req.Config.Arguments, values),
			Env:  req.Config.Env,
		})
	}
}

func (i *Invoker) runOneShot(ctx context.Context, c tools.Command) (string, error) {
	out, err := i.oneshot.Run(ctx, c)
	if err != nil {
		return "", err
	}
	dbg := monitor.NewStreamDebugger(ctx, c.Tool, i.sys.DebugChunks)
	dbg.WriteString(out)
	dbg.Close()
	return out, nil
}

// Reset clears provider clients, chat conversations and persistent sessions.
func (i *Invoker) Reset() {
	i.engine.Reset()
	i.sessions.Reset()
	slog.Info("Bridge state reset")
}

// Close stops every persistent session.
func (i *Invoker) Close() {
	i.sessions.Close()
}
