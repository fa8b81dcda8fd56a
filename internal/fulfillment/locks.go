package fulfillment

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes operations per entity id. The item-transition,
// re-derivation and table-flip sequence must run as a single unit per order,
// and two concurrent order creations must not claim the same table.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedLock)}
}

// Lock acquires the lock for key and returns its unlock function.
func (km *keyedMutex) Lock(key uuid.UUID) func() {
	km.mu.Lock()
	lock, ok := km.locks[key]
	if !ok {
		lock = &keyedLock{}
		km.locks[key] = lock
	}
	lock.refs++
	km.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		km.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
