package sla

import (
	"sync"

	"github.com/google/uuid"
)

// conversationLocks serializes timer read-modify-write cycles per
// conversation. Timers for different conversations stay fully independent.
// Entries are reference counted so the map does not grow with every
// conversation ever seen.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the conversation's lock and returns the unlock function.
func (c *conversationLocks) Lock(conversationID uuid.UUID) func() {
	c.mu.Lock()
	entry, ok := c.locks[conversationID]
	if !ok {
		entry = &lockEntry{}
		c.locks[conversationID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}
