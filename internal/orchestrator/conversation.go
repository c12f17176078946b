package orchestrator

import (
	"sync"
	"time"

	"tiryaq/voice/internal/types"
)

// MaxHistory is the number of history entries kept: three exchanges.
const MaxHistory = 6

// Identity is the caller information a conversation is started with.
type Identity struct {
	TenantID       string
	UserID         string
	FirstName      string
	LongTermMemory string
}

// Conversation is the per-session context a turn reads before generating and
// updates after it completes. The floor gate keeps writers sequential; the
// mutex covers readers on other goroutines such as session teardown.
type Conversation struct {
	Identity
	CreatedAt time.Time

	mu      sync.Mutex
	history []types.Turn
}

// NewConversation seeds a conversation with previously stored history,
// trimmed to MaxHistory.
func NewConversation(id Identity, history []types.Turn, createdAt time.Time) *Conversation {
	c := &Conversation{Identity: id, CreatedAt: createdAt}
	c.history = trim(append([]types.Turn(nil), history...))
	return c
}

// Append records one completed exchange, evicting the oldest entries.
func (c *Conversation) Append(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		types.Turn{Role: types.RoleUser, Content: user},
		types.Turn{Role: types.RoleAssistant, Content: assistant},
	)
	c.history = trim(c.history)
}

// Recent returns a copy of the last n entries.
func (c *Conversation) Recent(n int) []types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.history) {
		n = len(c.history)
	}
	return append([]types.Turn(nil), c.history[len(c.history)-n:]...)
}

// History returns a copy of the whole bounded history.
func (c *Conversation) History() []types.Turn {
	return c.Recent(MaxHistory)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func trim(h []types.Turn) []types.Turn {
	if len(h) <= MaxHistory {
		return h
	}
	return append([]types.Turn(nil), h[len(h)-MaxHistory:]...)
}
