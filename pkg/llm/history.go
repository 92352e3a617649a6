package llm

import (
	"sync"
)

// ChatHistory holds the turns of one conversation, keeping at most limit
// messages (0 means unbounded). Oldest messages are dropped first.
type ChatHistory struct {
	messages []Message
	limit    int
	mu       sync.RWMutex
}

// NewChatHistory creates an empty history.
func NewChatHistory(limit int) *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
		limit:    limit,
	}
}

// Add appends messages, trimming the oldest beyond the limit.
func (h *ChatHistory) Add(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	if h.limit > 0 && len(h.messages) > h.limit {
		h.messages = append([]Message(nil), h.messages[len(h.messages)-h.limit:]...)
	}
}

// GetMessages returns a copy of the stored messages.
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
