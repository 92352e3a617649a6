package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPromptFile is read when the tools config names no prompt file.
const DefaultPromptFile = "system_prompt.txt"

// DefaultSystemPrompt is used when no prompt file can be read.
const DefaultSystemPrompt = `You are an autonomous QA agent testing a running game.
Analyze the provided screen image and the UI context text.
Decide the next action to test the game or find bugs.

RESPONSE FORMAT:
You MUST respond ONLY with a valid JSON object. Do not include markdown code blocks or any explanation outside the JSON.

JSON SCHEMA:
{
  "thought": "Reasoning behind the action",
  "actionType": "Click" | "Drag" | "Wait" | "KeyPress" | "Type",
  "screenPosition": { "x": 0.0 to 1.0, "y": 0.0 to 1.0 },
  "targetPosition": { "x": 0.0 to 1.0, "y": 0.0 to 1.0 },
  "keyName": "Space" | "W" | "Enter" ... (if KeyPress),
  "textToType": "string" (if Type),
  "duration": float (seconds, for Wait)
}`

// PromptPath resolves the prompt file for cfg relative to the directory of
// the tools config at configPath.
func PromptPath(cfg *Config, configPath string) string {
	name := DefaultPromptFile
	if cfg != nil && cfg.SystemPromptFile != "" {
		name = cfg.SystemPromptFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(filepath.Dir(configPath), name)
}

// LoadSystemPrompt reads the prompt at path, falling back to
// DefaultSystemPrompt when the file is missing or blank.
func LoadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read system prompt, using default", "file", path, "error", err)
		}
		return DefaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return DefaultSystemPrompt
	}
	return prompt
}
