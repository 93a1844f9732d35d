package task

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Awaitable is anything whose result can be waited for with a context.
// Task implements it; Just adapts an immediate value.
type Awaitable[T any] interface {
	// Await blocks until the result is available or ctx completes. On ctx
	// completion the zero value and the context's cause are returned.
	Await(ctx context.Context) (T, error)
}

// Just returns an Awaitable that resolves immediately to v. It is the
// value counterpart of a Task for APIs that accept either.
func Just[T any](v T) Awaitable[T] {
	return just[T]{v: v}
}

type just[T any] struct {
	v T
}

func (j just[T]) Await(context.Context) (T, error) {
	return j.v, nil
}

// Handle is the type-erased view of a running or completed task, as held
// by the registry.
type Handle interface {
	// ID returns the unique identifier assigned at spawn time.
	ID() uuid.UUID

	// Name returns the diagnostic name given at spawn time.
	Name() string

	// Done returns a chan that is closed when the task has completed.
	Done() <-chan struct{}

	// Cancel requests cancellation of the task's context with the given
	// cause. The task completes only when its function returns.
	Cancel(cause error)

	// IsCancelled reports whether Cancel has been called on the task,
	// regardless of the cause or whether the task has completed yet.
	IsCancelled() bool

	// Err returns the task's completion error. It is only meaningful after
	// Done is closed; before that it returns nil.
	Err() error
}

// Task is a handle to a computation running in its own goroutine,
// producing a value of type T.
type Task[T any] struct {
	id        uuid.UUID
	name      string
	done      chan struct{}
	cancel    context.CancelCauseFunc
	cancelled atomic.Bool

	// result and err are written once, before done is closed.
	result T
	err    error
}

// Spawn starts fn in a new goroutine and returns a handle to it. The
// function receives a context derived from ctx that is cancelled when the
// task is cancelled or ctx completes; the task's own handle is retrievable
// from that context with FromContext. The task is tracked by the registry
// until it completes.
func Spawn[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	tctx, cancel := context.WithCancelCause(ctx)
	t := &Task[T]{
		id:     uuid.New(),
		name:   name,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	register(t)
	go func() {
		defer func() {
			unregister(t.id)
			cancel(nil)
			close(t.done)
		}()
		t.result, t.err = fn(contextWithTask(tctx, t))
	}()
	return t
}

// ID returns the unique identifier assigned at spawn time.
func (t *Task[T]) ID() uuid.UUID { return t.id }

// Name returns the diagnostic name given at spawn time.
func (t *Task[T]) Name() string { return t.name }

// Done returns a chan that is closed when the task has completed.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// IsDone reports whether the task has completed.
func (t *Task[T]) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Cancel requests cancellation of the task's context with the given cause
// (nil means context.Canceled). The task still completes only when its
// function returns.
func (t *Task[T]) Cancel(cause error) {
	t.cancelled.Store(true)
	t.cancel(cause)
}

// IsCancelled reports whether Cancel has been called on the task.
func (t *Task[T]) IsCancelled() bool {
	return t.cancelled.Load()
}

// Err returns the task's completion error. It is only meaningful after
// Done is closed; before that it returns nil.
func (t *Task[T]) Err() error {
	if !t.IsDone() {
		return nil
	}
	return t.err
}

// Await blocks until the task completes or ctx does. On task completion it
// returns the task's result; on ctx completion it returns the zero value
// and the context's cause. The task keeps running if ctx completes first.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

func (t *Task[T]) String() string {
	if t.name != "" {
		return fmt.Sprintf("task %q (%s)", t.name, t.id)
	}
	return fmt.Sprintf("task %s", t.id)
}
