package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/config"
	"toolbridge/pkg/metrics"
	"toolbridge/pkg/monitor"
	"toolbridge/pkg/utils"
)

// historyLimit caps the messages kept per chat conversation.
const historyLimit = 40

// Request is one in-process reasoning call.
type Request struct {
	Tool         string
	Config       config.ToolConfig
	ImagePath    string
	Context      string
	SystemPrompt string
	// APIKey overrides the tool's api_key and the provider environment.
	APIKey string
}

type cachedClient struct {
	signature string
	client    Client
}

// Engine owns provider clients and chat conversations, both keyed by tool.
type Engine struct {
	sys *config.SystemConfig

	mu      sync.Mutex
	clients map[string]cachedClient

	conversations *ConversationRegistry
}

// NewEngine creates an engine. A nil sys uses the default system config.
func NewEngine(sys *config.SystemConfig) *Engine {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	return &Engine{
		sys:           sys,
		clients:       make(map[string]cachedClient),
		conversations: NewConversationRegistry(historyLimit),
	}
}

// Invoke runs req as a chat turn when the tool has chat enabled, otherwise as
// a stateless generation.
func (e *Engine) Invoke(ctx context.Context, req Request) (string, error) {
	if req.Config.Chat {
		return e.Chat(ctx, req)
	}
	return e.Generate(ctx, req)
}

// Generate sends the system prompt and one user turn, keeping no state.
func (e *Engine) Generate(ctx context.Context, req Request) (string, error) {
	client, model, err := e.clientFor(req)
	if err != nil {
		return "", err
	}

	messages := []Message{}
	if req.SystemPrompt != "" {
		messages = append(messages, NewTextMessage(RoleSystem, req.SystemPrompt))
	}
	messages = append(messages, userMessage(req, UserPrompt(req.Context)))

	return e.call(ctx, req, client, model, messages)
}

// Chat continues the tool's conversation. The first turn carries the system
// prompt inline ahead of the user text.
func (e *Engine) Chat(ctx context.Context, req Request) (string, error) {
	client, model, err := e.clientFor(req)
	if err != nil {
		return "", err
	}

	conv := e.conversations.Get(req.Tool)
	conv.turn.Lock()
	defer conv.turn.Unlock()

	text := UserPrompt(req.Context)
	if !conv.Started() {
		conv.SystemPrompt = req.SystemPrompt
		if req.SystemPrompt != "" {
			text = req.SystemPrompt + "\n\n" + text
		}
	}
	user := userMessage(req, text)

	messages := append(conv.History.GetMessages(), user)
	reply, err := e.call(ctx, req, client, model, messages)
	if err != nil {
		return "", err
	}

	// Images are not replayed on later turns.
	conv.History.Add(user.TextOnly(), NewTextMessage(RoleAssistant, reply))
	return reply, nil
}

// Reset drops cached clients and every conversation.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.clients = make(map[string]cachedClient)
	e.mu.Unlock()
	e.conversations.Reset()
	slog.Info("Engine state cleared")
}

// Conversations exposes the chat registry.
func (e *Engine) Conversations() *ConversationRegistry {
	return e.conversations
}

func (e *Engine) call(ctx context.Context, req Request, client Client, model string, messages []Message) (string, error) {
	provider := req.Config.EffectiveProvider()
	ctx, cancel := context.WithTimeout(ctx, e.sys.ProviderTimeout())
	defer cancel()

	start := time.Now()
	reply, err := client.Generate(ctx, model, messages)
	if err != nil {
		metrics.ProviderRequestTotal.WithLabelValues(provider, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", action.NewError(action.UpstreamEngineFailure, err, "%s timed out after %s", provider, e.sys.ProviderTimeout())
		}
		return "", action.NewError(action.UpstreamEngineFailure, err, "%s request failed", provider)
	}
	metrics.ProviderRequestTotal.WithLabelValues(provider, "ok").Inc()
	slog.Info("Provider replied", "tool", req.Tool, "provider", provider, "model", model, "chars", len(reply), "elapsed", time.Since(start))

	dbg := monitor.NewStreamDebugger(ctx, req.Tool, e.sys.DebugChunks)
	dbg.WriteString(reply)
	dbg.Close()

	return reply, nil
}

// clientFor returns the cached client for req's tool, rebuilding it when the
// provider, key or base URL changed.
func (e *Engine) clientFor(req Request) (Client, string, error) {
	provider := req.Config.EffectiveProvider()
	factory, ok := GetProviderFactory(provider)
	if !ok {
		return nil, "", action.NewError(action.UpstreamEngineFailure, nil, "unknown provider %q", provider)
	}

	key := ResolveKey(factory, req)
	if key == "" && len(factory.KeyEnv()) > 0 {
		return nil, "", action.NewError(action.UpstreamEngineFailure, nil,
			"no API key for provider %s (set api_key or %s)", provider, strings.Join(factory.KeyEnv(), "/"))
	}

	model := req.Config.ModelName
	if model == "" {
		model = factory.DefaultModel()
	}
	if model == "" {
		return nil, "", action.NewError(action.UpstreamEngineFailure, nil, "provider %s requires model_name", provider)
	}

	baseURL := req.Config.BaseURL
	if baseURL == "" && provider == "ollama" {
		baseURL = e.sys.OllamaDefaultURL
	}
	signature := fmt.Sprintf("%s|%s|%s", provider, key, baseURL)

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[req.Tool]; ok && c.signature == signature {
		return c.client, model, nil
	}

	client, err := factory.Create(ProviderConfig{
		Provider: provider,
		APIKey:   key,
		BaseURL:  baseURL,
		Options:  req.Config.Options,
	}, e.sys)
	if err != nil {
		return nil, "", action.NewError(action.UpstreamEngineFailure, err, "create %s client", provider)
	}
	e.clients[req.Tool] = cachedClient{signature: signature, client: client}
	slog.Info("Provider client created", "tool", req.Tool, "provider", provider, "base_url", baseURL)
	return client, model, nil
}

// ResolveKey picks the API key: request override, then the tool's api_key,
// then the provider's environment variables.
func ResolveKey(factory ProviderFactory, req Request) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	if req.Config.APIKey != "" {
		return req.Config.APIKey
	}
	for _, name := range factory.KeyEnv() {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// UserPrompt is the user turn text for a context string.
func UserPrompt(context string) string {
	return "CONTEXT: " + context + "\nRespond with a single JSON object only."
}

// userMessage builds the user turn, attaching the screenshot when it exists.
func userMessage(req Request, text string) Message {
	msg := NewTextMessage(RoleUser, text)
	if req.ImagePath == "" {
		return msg
	}
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		slog.Warn("Screenshot unavailable, sending text only", "tool", req.Tool, "path", req.ImagePath, "error", err)
		return msg
	}
	mimeType, _, err := utils.SniffImage(data)
	if err != nil {
		slog.Warn("Screenshot is not an image, sending text only", "tool", req.Tool, "path", req.ImagePath, "error", err)
		return msg
	}
	return msg.WithImage(mimeType, data)
}
