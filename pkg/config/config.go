package config

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the execution strategy of a tool. It is a closed set: decoding any
// other value fails, so an unsupported kind is caught when the config is read.
type Kind string

const (
	KindInternal       Kind = "internal"
	KindTerminalBridge Kind = "terminal_bridge"
	KindPersistent     Kind = "persistent"
	KindOneShot        Kind = "oneshot"
)

// UnmarshalJSON rejects kinds outside the supported set.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tool type must be a string: %w", err)
	}
	switch Kind(strings.ToLower(s)) {
	case "":
		*k = ""
	case KindInternal, KindTerminalBridge, KindPersistent, KindOneShot:
		*k = Kind(strings.ToLower(s))
	default:
		return fmt.Errorf("unsupported tool type %q", s)
	}
	return nil
}

// Mode selects how a persistent tool is driven.
type Mode string

const (
	ModePipe Mode = "pipe"
	ModePTY  Mode = "pty"
)

// UnmarshalJSON rejects modes other than pipe and pty.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tool mode must be a string: %w", err)
	}
	switch Mode(strings.ToLower(s)) {
	case "":
		*m = ""
	case ModePipe, ModePTY:
		*m = Mode(strings.ToLower(s))
	default:
		return fmt.Errorf("unsupported tool mode %q", s)
	}
	return nil
}

// ToolConfig describes one external reasoning tool. The identifier is the key
// under which it appears in Config.Tools.
type ToolConfig struct {
	// Type is the execution kind. When empty it is derived from Persistent.
	Type Kind `json:"type,omitempty"`
	// Command is the executable for process-backed kinds.
	Command string `json:"command,omitempty"`
	// Arguments is the argument template. {image_path}, {context} and
	// {system_prompt} are replaced literally before spawning.
	Arguments   []string `json:"arguments,omitempty"`
	Persistent  bool     `json:"persistent,omitempty"`
	Mode        Mode     `json:"mode,omitempty"`
	Description string   `json:"description,omitempty"`
	// Env holds extra environment variables for spawned processes.
	Env map[string]string `json:"env,omitempty"`

	// Internal tools only.
	APIKey    string         `json:"api_key,omitempty"`
	ModelName string         `json:"model_name,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	BaseURL   string         `json:"base_url,omitempty"`
	Chat      bool           `json:"chat,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// EffectiveKind resolves the dispatch kind in priority order: internal,
// terminal_bridge, persistent (explicit kind or flag), then oneshot.
func (t ToolConfig) EffectiveKind() Kind {
	switch t.Type {
	case KindInternal, KindTerminalBridge:
		return t.Type
	}
	if t.Persistent || t.Type == KindPersistent {
		return KindPersistent
	}
	return KindOneShot
}

// EffectiveMode returns the persistent drive mode, defaulting to pipe.
func (t ToolConfig) EffectiveMode() Mode {
	if t.Mode == "" {
		return ModePipe
	}
	return t.Mode
}

// EffectiveProvider returns the in-process provider name, defaulting to gemini.
func (t ToolConfig) EffectiveProvider() string {
	if t.Provider == "" {
		return "gemini"
	}
	return strings.ToLower(t.Provider)
}

// Fingerprint identifies the process a persistent tool needs. A session whose
// fingerprint differs from the current config is restarted.
func (t ToolConfig) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(string(t.EffectiveMode()))
	sb.WriteByte(0)
	sb.WriteString(t.Command)
	for _, a := range t.Arguments {
		sb.WriteByte(0)
		sb.WriteString(a)
	}
	for _, k := range sortedKeys(t.Env) {
		sb.WriteByte(0)
		sb.WriteString(k + "=" + t.Env[k])
	}
	return sb.String()
}

// Validate checks the fields the tool's kind requires.
func (t ToolConfig) Validate() error {
	switch t.EffectiveKind() {
	case KindOneShot, KindPersistent:
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("'command' is required for %s tools", t.EffectiveKind())
		}
	}
	return nil
}

// Config is the tools configuration, usually tools_config.json.
type Config struct {
	// SelectedTool names the entry in Tools that serves requests.
	SelectedTool string `json:"selected_tool"`
	// SystemPromptFile overrides the system prompt location. Relative paths
	// are resolved against the config file's directory.
	SystemPromptFile string                `json:"system_prompt_file,omitempty"`
	Tools            map[string]ToolConfig `json:"tools"`
}

// Selected returns the active tool. ok is false when selected_tool is empty
// or names a tool that is not configured.
func (c *Config) Selected() (string, ToolConfig, bool) {
	if c == nil || c.SelectedTool == "" {
		return "", ToolConfig{}, false
	}
	t, ok := c.Tools[c.SelectedTool]
	return c.SelectedTool, t, ok
}

// Parse decodes a tools configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tools config: %w", err)
	}
	if cfg.Tools == nil {
		cfg.Tools = make(map[string]ToolConfig)
	}
	return &cfg, nil
}

// Load reads and parses the tools configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools config '%s': %w", path, err)
	}
	return Parse(data)
}
