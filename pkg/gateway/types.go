package gateway

import (
	"toolbridge/pkg/api"
)

// Aliases so channel and handler code can refer to gateway types directly.
type Channel = api.Channel
type ChannelContext = api.ChannelContext
type AskRequest = api.AskRequest
type AskHandler = api.AskHandler
type SessionContext = api.SessionContext
type FileAttachment = api.FileAttachment
