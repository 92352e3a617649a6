package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"toolbridge/pkg/llm"

	"github.com/ollama/ollama/api"
)

// OllamaClient talks to a local or remote Ollama server.
type OllamaClient struct {
	client  *api.Client
	options map[string]any
}

// NewOllamaClient creates an Ollama client. An empty baseURL reads
// OLLAMA_HOST from the environment.
func NewOllamaClient(baseURL string, options map[string]any) (*OllamaClient, error) {
	if baseURL == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
		return &OllamaClient{client: client, options: options}, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// Call deadlines come from the request context, not the transport.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Transport: &JSONFixingRoundTripper{Proxied: transport}}

	return &OllamaClient{client: api.NewClient(u, httpClient), options: options}, nil
}

// Generate implements llm.Client with a single non-streamed chat call.
func (o *OllamaClient) Generate(ctx context.Context, model string, messages []llm.Message) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(messages),
		Options:  o.options,
		Stream:   &stream,
	}

	var out strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		if resp.Done {
			llm.LogUsage("ollama", model, &llm.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				StopReason:       resp.DoneReason,
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("ollama returned no text")
	}
	slog.Debug("Ollama reply", "model", model, "chars", out.Len())
	return out.String(), nil
}

func convertMessages(messages []llm.Message) []api.Message {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		var text strings.Builder
		var images []api.ImageData
		for _, block := range m.Content {
			switch block.Type {
			case llm.BlockTypeText:
				text.WriteString(block.Text)
			case llm.BlockTypeImage:
				if block.Source != nil && len(block.Source.Data) > 0 {
					images = append(images, block.Source.Data)
				}
			}
		}
		msgs = append(msgs, api.Message{
			Role:    m.Role,
			Content: text.String(),
			Images:  images,
		})
	}
	return msgs
}

// JSONFixingRoundTripper strips illegal escapes (e.g. \$) some models emit
// inside JSON responses.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			// Only backslashes are removed, so the result fits in p.
			copy(p, fixed)
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
