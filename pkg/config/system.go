package config

import (
	"os"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// BridgeCommand is the fixed command used for terminal_bridge tools. The
// selected tool's identifier is exported to it as TOOLBRIDGE_TOOL.
type BridgeCommand struct {
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control timing,
// process handling and diagnostics of the bridge.
type SystemConfig struct {
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// OneShotTimeoutMs is the wall-clock limit for a one-shot tool process.
	// Values are clamped to the 60s..120s window.
	OneShotTimeoutMs int `json:"oneshot_timeout_ms"`
	// SessionDeadlineMs bounds how long a persistent session request waits
	// for parseable output.
	SessionDeadlineMs int `json:"session_deadline_ms"`
	// PollIntervalMs is the receive timeout between extraction attempts.
	PollIntervalMs int `json:"poll_interval_ms"`
	// SessionBuffer is the number of output chunks queued per stream before
	// the oldest are dropped.
	SessionBuffer int `json:"session_buffer"`
	// PTYCols and PTYRows size the pseudo-terminal for pty mode tools.
	PTYCols int `json:"pty_cols"`
	PTYRows int `json:"pty_rows"`
	// ProviderTimeoutMs is the hard cutoff for an in-process provider call.
	ProviderTimeoutMs int `json:"provider_timeout_ms"`
	// OllamaDefaultURL is used by the ollama provider when a tool sets no base_url.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// TerminalBridge is the command every terminal_bridge tool runs.
	TerminalBridge BridgeCommand `json:"terminal_bridge"`
	// ImageDir is where uploaded screenshots are written.
	ImageDir string `json:"image_dir"`
	// ImageRetentionMs deletes saved screenshots older than this. 0 keeps them.
	ImageRetentionMs int `json:"image_retention_ms"`
	// DebugChunks dumps raw tool output under debug/chunks for inspection.
	DebugChunks bool `json:"debug_chunks"`
	// Channels maps channel identifiers (e.g. "web") to raw channel config.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the bridge can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		LogLevel:          "info",
		OneShotTimeoutMs:  120000,
		SessionDeadlineMs: 45000,
		PollIntervalMs:    200,
		SessionBuffer:     256,
		PTYCols:           200,
		PTYRows:           50,
		ProviderTimeoutMs: 120000,
		OllamaDefaultURL:  "http://localhost:11434",
		TerminalBridge: BridgeCommand{
			Command:   "python",
			Arguments: []string{"terminal_bridge.py", "{image_path}", "{context}", "{system_prompt}"},
		},
		ImageDir:         "data/frames",
		ImageRetentionMs: 3600000,
		Channels: map[string]jsoniter.RawMessage{
			"web": jsoniter.RawMessage(`{"host":"127.0.0.1","port":8000}`),
		},
	}
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	// Channels replace the defaults rather than merging into them.
	defaults := cfg.Channels
	cfg.Channels = nil
	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}
	if cfg.Channels == nil {
		cfg.Channels = defaults
	}

	return cfg
}

// OneShotTimeout returns the one-shot limit clamped to 60s..120s.
func (s *SystemConfig) OneShotTimeout() time.Duration {
	d := time.Duration(s.OneShotTimeoutMs) * time.Millisecond
	if d < 60*time.Second {
		return 60 * time.Second
	}
	if d > 120*time.Second {
		return 120 * time.Second
	}
	return d
}

// SessionDeadline returns the persistent-session wait budget.
func (s *SystemConfig) SessionDeadline() time.Duration {
	return msOr(s.SessionDeadlineMs, 45*time.Second)
}

// PollInterval returns the receive timeout between extraction attempts.
func (s *SystemConfig) PollInterval() time.Duration {
	return msOr(s.PollIntervalMs, 200*time.Millisecond)
}

// ProviderTimeout returns the in-process provider call limit.
func (s *SystemConfig) ProviderTimeout() time.Duration {
	return msOr(s.ProviderTimeoutMs, 120*time.Second)
}

// ImageRetention returns how long saved screenshots are kept; 0 means forever.
func (s *SystemConfig) ImageRetention() time.Duration {
	if s.ImageRetentionMs <= 0 {
		return 0
	}
	return time.Duration(s.ImageRetentionMs) * time.Millisecond
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
