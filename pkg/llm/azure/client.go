package azure

import (
	"context"
	"fmt"

	"toolbridge/pkg/llm"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// Client sends chat completions to an Azure OpenAI deployment. The model
// name is the deployment name.
type Client struct {
	client  *azopenai.Client
	options map[string]any
}

// NewClient creates a client for the resource at endpoint.
func NewClient(endpoint, apiKey string, options map[string]any) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azure provider requires base_url (resource endpoint)")
	}
	client, err := azopenai.NewClientWithKeyCredential(endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating Azure OpenAI client: %w", err)
	}
	return &Client{client: client, options: options}, nil
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, deployment string, messages []llm.Message) (string, error) {
	opts := azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(deployment),
		Messages:       convertMessages(messages),
	}
	if t, ok := c.options["temperature"].(float64); ok {
		opts.Temperature = to.Ptr(float32(t))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts.MaxTokens = to.Ptr(int32(maxTok))
	}

	resp, err := c.client.GetChatCompletions(ctx, opts, nil)
	if err != nil {
		return "", err
	}

	if resp.Usage != nil {
		usage := &llm.Usage{}
		if resp.Usage.PromptTokens != nil {
			usage.PromptTokens = int(*resp.Usage.PromptTokens)
		}
		if resp.Usage.CompletionTokens != nil {
			usage.CompletionTokens = int(*resp.Usage.CompletionTokens)
		}
		if resp.Usage.TotalTokens != nil {
			usage.TotalTokens = int(*resp.Usage.TotalTokens)
		}
		llm.LogUsage("azure", deployment, usage)
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil && resp.Choices[0].Message.Content != nil {
		return *resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("no completion received from deployment %s", deployment)
}

// convertMessages maps the conversation onto chat request messages. User
// turns carrying a screenshot become text plus image_url content parts.
func convertMessages(messages []llm.Message) []azopenai.ChatRequestMessageClassification {
	var out []azopenai.ChatRequestMessageClassification
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, &azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(m.GetTextContent()),
			})
		case llm.RoleAssistant:
			out = append(out, &azopenai.ChatRequestAssistantMessage{
				Content: azopenai.NewChatRequestAssistantMessageContent(m.GetTextContent()),
			})
		case llm.RoleUser:
			if !m.HasImages() {
				out = append(out, &azopenai.ChatRequestUserMessage{
					Content: azopenai.NewChatRequestUserMessageContent(m.GetTextContent()),
				})
				continue
			}
			var parts []azopenai.ChatCompletionRequestMessageContentPartClassification
			for _, block := range m.Content {
				switch block.Type {
				case llm.BlockTypeText:
					parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartText{
						Text: to.Ptr(block.Text),
					})
				case llm.BlockTypeImage:
					if block.Source == nil {
						continue
					}
					parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartImage{
						ImageURL: &azopenai.ChatCompletionRequestMessageContentPartImageURL{
							URL: to.Ptr(block.Source.DataURL()),
						},
					})
				}
			}
			out = append(out, &azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(parts),
			})
		}
	}
	return out
}
