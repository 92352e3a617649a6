package openailm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"toolbridge/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
)

// Client is a wrapper around the official OpenAI Go SDK
type Client struct {
	client  *openai.Client
	options map[string]any
}

// NewClient creates a new OpenAI client. An empty baseURL uses the SDK default.
func NewClient(apiKey, baseURL string, options map[string]any) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client, options: options}
}

// Generate implements llm.Client using the Responses API.
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message) (string, error) {
	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(messages),
		},
	}
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = param.NewOpt(t)
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxOutputTokens = param.NewOpt(int64(maxTok))
	}

	slog.Debug("OpenAI request", "model", model, "items", len(params.Input.OfInputItemList))
	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}

	llm.LogUsage("openai", model, &llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		StopReason:       string(resp.Status),
	})

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("openai returned no text (status %s)", resp.Status)
	}
	return text, nil
}

func convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			if !m.HasImages() {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.GetTextContent(),
					responses.EasyInputMessageRoleUser,
				))
				continue
			}
			var contentParts responses.ResponseInputMessageContentListParam
			for _, block := range m.Content {
				switch block.Type {
				case llm.BlockTypeText:
					contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
						OfInputText: &responses.ResponseInputTextParam{Text: block.Text},
					})
				case llm.BlockTypeImage:
					if block.Source == nil {
						continue
					}
					contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
						OfInputImage: &responses.ResponseInputImageParam{
							Detail:   responses.ResponseInputImageDetailAuto,
							ImageURL: param.NewOpt(block.Source.DataURL()),
						},
					})
				}
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(
				contentParts,
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
		}
	}

	return items
}
