package llm

import "encoding/base64"

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock Type constants define the supported content block formats.
const (
	BlockTypeText  = "text"
	BlockTypeImage = "image"
)

// Message is one conversation turn in provider-neutral form.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a piece of a message: text or an inline image.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries raw image bytes with their MIME type.
type ImageSource struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// DataURL renders the image as a base64 data URL for providers that take
// images by URL.
func (s *ImageSource) DataURL() string {
	return "data:" + s.MediaType + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockTypeText, Text: text}}}
}

// WithImage returns m with an image block appended.
func (m Message) WithImage(mediaType string, data []byte) Message {
	blocks := make([]ContentBlock, len(m.Content), len(m.Content)+1)
	copy(blocks, m.Content)
	m.Content = append(blocks, ContentBlock{
		Type:   BlockTypeImage,
		Source: &ImageSource{MediaType: mediaType, Data: data},
	})
	return m
}

// GetTextContent joins the text blocks of m.
func (m Message) GetTextContent() string {
	var text string
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			text += b.Text
		}
	}
	return text
}

// HasImages reports whether m carries at least one image.
func (m Message) HasImages() bool {
	for _, b := range m.Content {
		if b.Type == BlockTypeImage && b.Source != nil && len(b.Source.Data) > 0 {
			return true
		}
	}
	return false
}

// TextOnly strips image blocks, keeping what is stored in chat history.
func (m Message) TextOnly() Message {
	return NewTextMessage(m.Role, m.GetTextContent())
}
