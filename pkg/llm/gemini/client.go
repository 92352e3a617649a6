package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"toolbridge/pkg/llm"

	"google.golang.org/genai"
)

// GeminiClient wraps the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	options map[string]any
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, options map[string]any) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, options: options}, nil
}

// Generate implements llm.Client.
func (g *GeminiClient) Generate(ctx context.Context, model string, messages []llm.Message) (string, error) {
	contents, systemInstruction := convertMessages(messages)

	genCfg := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if t, ok := g.options["temperature"].(float64); ok {
		temp := float32(t)
		genCfg.Temperature = &temp
	}
	if maxTok, ok := g.options["max_tokens"].(float64); ok {
		genCfg.MaxOutputTokens = int32(maxTok)
	}

	slog.Debug("Gemini request", "model", model, "turns", len(contents))
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return "", err
	}

	if u := resp.UsageMetadata; u != nil {
		usage := &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		if len(resp.Candidates) > 0 {
			usage.StopReason = string(resp.Candidates[0].FinishReason)
		}
		llm.LogUsage("gemini", model, usage)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// convertMessages converts messages to GenAI contents. System messages become
// the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if text := msg.GetTextContent(); text != "" {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockTypeText:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			case llm.BlockTypeImage:
				if block.Source != nil && len(block.Source.Data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{
							MIMEType: block.Source.MediaType,
							Data:     block.Source.Data,
						},
					})
				}
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction
}
