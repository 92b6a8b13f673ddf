package orchestration

import (
	"slices"
	"sync"

	"github.com/koscakluka/ema-phone/core/llms"
)

// conversation is the append-only history of one session.
type conversation struct {
	mu    sync.RWMutex
	turns []llms.Turn
}

// append adds turn unless the session is no longer active.
func (c *conversation) append(turn llms.Turn, active func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !active() {
		return false
	}
	c.turns = append(c.turns, turn)
	return true
}

func (c *conversation) History() []llms.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.turns)
}

func (c *conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.turns)
}
