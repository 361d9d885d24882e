package a2aserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOMutexBasicLockUnlock(t *testing.T) {
	m := newFIFOMutex()
	require.NoError(t, m.lock(context.Background()))
	require.True(t, m.isLocked())
	require.NoError(t, m.unlock())
	require.False(t, m.isLocked())
}

func TestFIFOMutexUnlockWithoutLockErrors(t *testing.T) {
	m := newFIFOMutex()
	require.ErrorIs(t, m.unlock(), errNotLocked)
}

func TestFIFOMutexAdmitsInFIFOOrder(t *testing.T) {
	m := newFIFOMutex()
	require.NoError(t, m.lock(context.Background()))

	const n = 5
	order := make([]int, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.lock(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			require.NoError(t, m.unlock())
		}()
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, m.unlock())
	wg.Wait()

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i, order[i])
	}
}

func TestFIFOMutexLockRespectsContextCancellation(t *testing.T) {
	m := newFIFOMutex()
	require.NoError(t, m.lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := m.lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFIFOMutexAbandonedWaiterDoesNotBlockQueue(t *testing.T) {
	m := newFIFOMutex()
	require.NoError(t, m.lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, m.lock(ctx))

	done := make(chan struct{})
	go func() {
		require.NoError(t, m.lock(context.Background()))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.unlock())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
