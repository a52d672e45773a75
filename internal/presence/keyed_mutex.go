package presence

import (
	"sync"

	"github.com/google/uuid"
)

type lockKey struct {
	userID uuid.UUID
	roomID uuid.UUID
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per (user, room). Entries are dropped once
// no goroutine holds or waits for them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[lockKey]*lockEntry)}
}

func (k *keyedMutex) lock(key lockKey) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
