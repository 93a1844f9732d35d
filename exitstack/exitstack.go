// Package exitstack provides dynamic management of a stack of cleanup
// callbacks, for code that acquires a variable number of resources and
// must release them in reverse order even when a later acquisition fails.
package exitstack

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ReleaseFunc releases one acquired resource.
type ReleaseFunc func(ctx context.Context) error

// Stack is a LIFO stack of cleanup callbacks. The zero value is ready to
// use. It is safe for concurrent use.
type Stack struct {
	mu  sync.Mutex
	cbs []ReleaseFunc
}

// New returns an empty Stack.
func New() *Stack {
	return &Stack{}
}

// Len returns the number of registered callbacks.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cbs)
}

// Push registers a cleanup callback to run when the stack is closed.
func (s *Stack) Push(fn ReleaseFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.cbs = append(s.cbs, fn)
	s.mu.Unlock()
}

// PushCloser registers an io.Closer to be closed when the stack is closed.
func (s *Stack) PushCloser(c io.Closer) {
	if c == nil {
		return
	}
	s.Push(Closing(c))
}

// Closing adapts an io.Closer into a ReleaseFunc.
func Closing(c io.Closer) ReleaseFunc {
	return func(context.Context) error {
		return c.Close()
	}
}

// PopAll transfers the registered callbacks to a new Stack, leaving the
// receiver empty. Useful for committing: once setup succeeds, the caller
// pops the callbacks into a longer-lived stack so the local deferred Close
// releases nothing.
func (s *Stack) PopAll() *Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := &Stack{cbs: s.cbs}
	s.cbs = nil
	return moved
}

// Close unwinds the stack, invoking every registered callback in LIFO
// order. Every callback runs exactly once even if some fail; the failures
// are joined into the returned error. The stack is empty afterwards and
// may be reused.
func (s *Stack) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cbs := s.cbs
	s.cbs = nil
	s.mu.Unlock()

	var errs []error
	for i := len(cbs) - 1; i >= 0; i-- {
		if err := cbs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enter runs acquire and, on success, pushes the returned release onto the
// stack, returning the acquired value. On failure nothing is registered.
func Enter[T any](ctx context.Context, s *Stack, acquire func(ctx context.Context) (T, ReleaseFunc, error)) (T, error) {
	v, release, err := acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Push(release)
	return v, nil
}

// Dispose closes several stacks concurrently, waiting for all of them and
// joining any failures.
func Dispose(ctx context.Context, stacks ...*Stack) error {
	if len(stacks) == 0 {
		return nil
	}
	errs := make([]error, len(stacks))
	var wg sync.WaitGroup
	for i, st := range stacks {
		wg.Add(1)
		go func(i int, st *Stack) {
			defer wg.Done()
			errs[i] = st.Close(ctx)
		}(i, st)
	}
	wg.Wait()
	return errors.Join(errs...)
}
