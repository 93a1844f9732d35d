package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func spawnValue(v int, err error, gate <-chan struct{}) *Task[int] {
	return Spawn(context.Background(), "worker", func(ctx context.Context) (int, error) {
		if gate != nil {
			<-gate
		}
		return v, err
	})
}

func TestWaitAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tasks := []*Task[int]{
		spawnValue(1, nil, nil),
		spawnValue(2, nil, nil),
		spawnValue(3, nil, nil),
	}
	done, pending, err := WaitAll(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, done, 3)
	require.Empty(t, pending)
}

func TestWaitAllReportsFailuresToCareHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	var mu sync.Mutex
	var cared []error
	tasks := []*Task[int]{
		spawnValue(1, nil, nil),
		spawnValue(0, boom, nil),
	}
	done, pending, err := WaitAll(context.Background(), tasks, WithCareHandler(func(h Handle, err error) {
		mu.Lock()
		cared = append(cared, err)
		mu.Unlock()
	}))
	require.NoError(t, err)
	require.Len(t, done, 2)
	require.Empty(t, pending)
	require.Len(t, cared, 1)
	require.ErrorIs(t, cared[0], boom)
}

func TestWaitFirstError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	gate := make(chan struct{})
	tasks := []*Task[int]{
		spawnValue(0, boom, nil),
		spawnValue(1, nil, gate),
	}
	done, pending, err := WaitFirstError(context.Background(), tasks)
	require.ErrorIs(t, err, boom)
	require.NotEmpty(t, done)
	require.NotEmpty(t, pending)

	close(gate)
	_, _, err = WaitAll(context.Background(), tasks)
	require.NoError(t, err)
}

func TestWaitFirstCompleted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := make(chan struct{})
	fast := spawnValue(1, nil, nil)
	slow := spawnValue(2, nil, gate)
	done, pending, err := WaitFirstCompleted(context.Background(), []*Task[int]{fast, slow})
	require.NoError(t, err)
	require.Contains(t, done, fast)
	require.Contains(t, pending, slow)

	close(gate)
	_, err = slow.Await(context.Background())
	require.NoError(t, err)
}

func TestWaitIgnoreCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cancelled := Spawn(context.Background(), "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	cancelled.Cancel(nil)

	var mu sync.Mutex
	var cared int
	done, pending, err := WaitFirstError(context.Background(), []*Task[int]{cancelled},
		IgnoreCancelled(),
		WithCareHandler(func(Handle, error) {
			mu.Lock()
			cared++
			mu.Unlock()
		}))
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Empty(t, pending)
	require.Zero(t, cared)
}

func TestWaitIgnoreCancelledWithCustomCause(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	superseded := errors.New("superseded")
	tk := Spawn(context.Background(), "superseded", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, context.Cause(ctx)
	})
	tk.Cancel(superseded)

	// The task failed with its custom cancellation cause, but it was
	// cancelled, so the wait treats it as benign.
	done, pending, err := WaitFirstError(context.Background(), []*Task[int]{tk}, IgnoreCancelled())
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Empty(t, pending)
	require.True(t, tk.IsCancelled())
	require.ErrorIs(t, tk.Err(), superseded)
}

func TestWaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := make(chan struct{})
	tk := spawnValue(1, nil, gate)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	done, pending, err := WaitAll(ctx, []*Task[int]{tk})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, done)
	require.Contains(t, pending, tk)

	close(gate)
	_, err = tk.Await(context.Background())
	require.NoError(t, err)
}

func TestWaitNoTasks(t *testing.T) {
	done, pending, err := WaitAll[int](context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, done)
	require.Empty(t, pending)
}
