package locks

import (
	"context"
	"sync"
)

// Mutex is a context-aware mutual exclusion lock built on the queued lock
// stack: Lock can give up when its context completes, and waiters acquire
// in FIFO order. The zero value is an unlocked mutex.
type Mutex struct {
	st Stack

	mu  sync.Mutex
	rel func()
}

// Lock acquires the mutex, waiting in FIFO order behind earlier waiters.
// If ctx completes first it returns ctx's error and the mutex is not
// acquired.
func (m *Mutex) Lock(ctx context.Context) error {
	release, err := m.st.Acquire(ctx, Write{})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rel = release
	m.mu.Unlock()
	return nil
}

// TryLock acquires the mutex only if it is immediately available,
// reporting whether it did.
func (m *Mutex) TryLock() bool {
	release, ok := m.st.TryAcquire(Write{})
	if !ok {
		return false
	}
	m.mu.Lock()
	m.rel = release
	m.mu.Unlock()
	return true
}

// Unlock releases the mutex. It panics if the mutex is not locked.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	release := m.rel
	m.rel = nil
	m.mu.Unlock()
	if release == nil {
		panic("locks: Unlock of unlocked Mutex")
	}
	release()
}
