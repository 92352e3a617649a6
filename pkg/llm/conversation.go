package llm

import (
	"sync"
)

// Conversation is the chat state of one tool. turn serializes whole
// request/response exchanges so turns are recorded in order.
type Conversation struct {
	History *ChatHistory
	// SystemPrompt is the prompt prepended to the first turn.
	SystemPrompt string

	turn sync.Mutex
}

// Started reports whether the first turn has been recorded.
func (c *Conversation) Started() bool {
	return c.History.Len() > 0
}

// ConversationRegistry maps tool identifiers to their conversations.
type ConversationRegistry struct {
	conversations map[string]*Conversation
	limit         int
	mu            sync.RWMutex
}

// NewConversationRegistry creates an empty registry. limit caps the messages
// kept per conversation (0 means unbounded).
func NewConversationRegistry(limit int) *ConversationRegistry {
	return &ConversationRegistry{
		conversations: make(map[string]*Conversation),
		limit:         limit,
	}
}

// Get returns the conversation for tool, creating it on first use.
func (r *ConversationRegistry) Get(tool string) *Conversation {
	r.mu.RLock()
	c, ok := r.conversations[tool]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check under lock
	if c, ok = r.conversations[tool]; ok {
		return c
	}
	c = &Conversation{History: NewChatHistory(r.limit)}
	r.conversations[tool] = c
	return c
}

// Reset forgets every conversation.
func (r *ConversationRegistry) Reset() {
	r.mu.Lock()
	r.conversations = make(map[string]*Conversation)
	r.mu.Unlock()
}

// Len returns the number of live conversations.
func (r *ConversationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}
