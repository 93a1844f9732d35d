package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestReadersShareWritersExclude(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	ctx := context.Background()

	rel1, err := st.Acquire(ctx, Read{})
	require.NoError(t, err)
	rel2, err := st.Acquire(ctx, Read{})
	require.NoError(t, err)

	_, ok := st.TryAcquire(Write{})
	require.False(t, ok)

	rel1()
	rel2()

	relW, ok := st.TryAcquire(Write{})
	require.True(t, ok)
	_, ok = st.TryAcquire(Read{})
	require.False(t, ok)
	relW()
}

func TestWriterWaitsForReaders(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	ctx := context.Background()

	relR, err := st.Acquire(ctx, Read{})
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		rel, err := st.Acquire(ctx, Write{})
		if err != nil {
			close(acquired)
			return
		}
		acquired <- rel
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	relR()
	select {
	case rel := <-acquired:
		require.NotNil(t, rel)
		rel()
	case <-time.After(2 * time.Second):
		t.Fatal("writer never acquired after reader released")
	}
}

func TestQueuedWriterBlocksNewReaders(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	ctx := context.Background()

	relR, err := st.Acquire(ctx, Read{})
	require.NoError(t, err)

	// A waiting writer keeps later readers behind it, even though their
	// policy would allow them to share with the current reader.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		rel, err := st.Acquire(ctx, Write{})
		if err == nil {
			rel()
		}
	}()

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.queue) == 1
	}, time.Second, time.Millisecond)

	_, ok := st.TryAcquire(Read{})
	require.False(t, ok)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		rel, err := st.Acquire(ctx, Read{})
		if err == nil {
			rel()
		}
	}()

	relR()
	<-writerDone
	<-readerDone
}

func TestAcquireHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	relW, err := st.Acquire(context.Background(), Write{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = st.Acquire(ctx, Write{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter does not block a later acquisition.
	relW()
	rel, err := st.Acquire(context.Background(), Write{})
	require.NoError(t, err)
	rel()
}

func TestCancelledWaiterDoesNotBlockQueue(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	relW, err := st.Acquire(context.Background(), Write{})
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error)
	go func() {
		_, err := st.Acquire(cancelCtx, Write{})
		abandoned <- err
	}()

	acquired := make(chan func())
	go func() {
		rel, err := st.Acquire(context.Background(), Read{})
		if err != nil {
			close(acquired)
			return
		}
		acquired <- rel
	}()

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.queue) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-abandoned, context.Canceled)

	relW()
	select {
	case rel := <-acquired:
		require.NotNil(t, rel)
		rel()
	case <-time.After(2 * time.Second):
		t.Fatal("reader stuck behind a cancelled waiter")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := NewStack()
	rel, err := st.Acquire(context.Background(), Write{})
	require.NoError(t, err)
	rel()
	rel()

	rel2, ok := st.TryAcquire(Write{})
	require.True(t, ok)
	rel2()
}

func TestMutexExcludes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var m Mutex
	ctx := context.Background()

	var held, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.Lock(ctx))
			n := atomic.AddInt32(&held, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			atomic.AddInt32(&held, -1)
			m.Unlock()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestMutexTryLock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var m Mutex
	require.True(t, m.TryLock())
	require.False(t, m.TryLock())
	m.Unlock()
	require.True(t, m.TryLock())
	m.Unlock()
}

func TestMutexUnlockPanicsWhenUnlocked(t *testing.T) {
	var m Mutex
	require.Panics(t, func() { m.Unlock() })
}
