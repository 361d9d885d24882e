package a2aserver

import (
	"context"
	"sync"
)

// fifoMutex is a mutex that admits waiters in FIFO order (§4.6: "Fairness:
// waiters are admitted in FIFO order"). Go's sync.Mutex does not guarantee
// this under contention, hence the explicit waiter queue.
type fifoMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

func newFIFOMutex() *fifoMutex { return &fifoMutex{} }

// lock blocks until the mutex is acquired or ctx is canceled.
func (m *fifoMutex) lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.abandon(ch)
		return ctx.Err()
	}
}

// abandon removes ch from the waiter queue if it is still pending, for the
// case where ctx was canceled before this waiter was woken.
func (m *fifoMutex) abandon(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == ch {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// unlock releases the mutex, waking the longest-waiting blocked locker if
// any. Unlocking a mutex that is not held is an error (§4.6).
func (m *fifoMutex) unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		return errNotLocked
	}
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		close(next)
		return nil
	}
	m.locked = false
	return nil
}

func (m *fifoMutex) isLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
