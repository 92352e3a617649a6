// Package llm runs reasoning requests against in-process provider SDKs.
package llm

import (
	"log/slog"
)

// Usage is the provider-neutral token accounting of one call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage logs token accounting for one call. A nil usage is ignored.
func LogUsage(provider, model string, usage *Usage) {
	if usage == nil {
		return
	}
	slog.Debug("Provider usage",
		"provider", provider,
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"stop_reason", usage.StopReason,
	)
}
