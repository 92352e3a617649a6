package api

import (
	"context"

	"toolbridge/pkg/action"
)

// Channel defines the standardized lifecycle interface for inbound transports.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
}

// ChannelContext is what a Channel calls back into. Requests are synchronous:
// a channel holds its client until the response is ready.
type ChannelContext interface {
	Ask(ctx context.Context, req *AskRequest) action.Response
	Reset(ctx context.Context, channelID string)
}

// AskRequest is one screenshot-plus-context decision request.
type AskRequest struct {
	Session SessionContext
	// Context is the free-form description of what is on screen.
	Context string
	// Image is the screenshot. Nil means the request is text only.
	Image *FileAttachment
	// APIKey overrides the key of in-process tools for this request.
	APIKey string
	// RequestID groups logs and debug dumps of this request. Set by the gateway.
	RequestID string
	// Tool is the tool that served the request. Set by the handler.
	Tool string
}

// SessionContext identifies where a request came from.
type SessionContext struct {
	ChannelID string // e.g. "web"
	ClientID  string // Transport-specific client identifier, e.g. remote address
}

// FileAttachment is an uploaded file, in memory or already on disk.
type FileAttachment struct {
	Filename string
	MimeType string
	Data     []byte // nil if Path is set
	Path     string
}

// AskHandler produces decisions. The gateway forwards every request to it.
type AskHandler interface {
	Ask(ctx context.Context, req *AskRequest) action.Response
	Reset(ctx context.Context)
}
