package task

import (
	"context"
	"errors"

	"github.com/sammck-go/asynctools/log"
)

// WaitPolicy selects when a multi-task wait returns.
type WaitPolicy int

const (
	// AllCompleted waits until every task has completed.
	AllCompleted WaitPolicy = iota

	// FirstCompleted returns as soon as any task completes.
	FirstCompleted

	// FirstError returns as soon as any task completes with an error that
	// is not filtered out, or when all tasks complete.
	FirstError
)

// CareHandler receives errors from completed tasks that a wait does not
// return to its caller, so that no failure goes unobserved.
type CareHandler func(h Handle, err error)

type waitConfig struct {
	ignoreCancelled bool
	care            CareHandler
}

// WaitOption adjusts how Wait treats task failures.
type WaitOption func(*waitConfig)

// IgnoreCancelled makes the wait treat cancelled tasks as benign: their
// errors are neither returned (under FirstError) nor reported to the care
// handler. A task counts as cancelled if Cancel was called on it, whatever
// the cause, or if its error is context.Canceled.
func IgnoreCancelled() WaitOption {
	return func(c *waitConfig) { c.ignoreCancelled = true }
}

// WithCareHandler replaces the default care handler, which logs the
// failure.
func WithCareHandler(care CareHandler) WaitOption {
	return func(c *waitConfig) { c.care = care }
}

func defaultCare(h Handle, err error) {
	l := log.WithComponent("task")
	l.Error().
		Str("task", h.Name()).
		Str("id", h.ID().String()).
		Err(err).
		Msg("task failed while being waited on")
}

// Wait waits on tasks according to policy and returns the tasks that had
// completed when the wait ended, the tasks still pending, and an error.
//
// Failures of completed tasks are never silently dropped: under FirstError
// the first qualifying failure ends the wait and is returned; under any
// policy, other failures are passed to the care handler. Cancellation
// errors are exempt from both when IgnoreCancelled is set.
//
// If ctx completes before the policy is satisfied, Wait returns the
// partial split and ctx's error. The tasks themselves are not cancelled.
func Wait[T any](ctx context.Context, policy WaitPolicy, tasks []*Task[T], opts ...WaitOption) (done, pending []*Task[T], err error) {
	cfg := waitConfig{care: defaultCare}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(tasks) == 0 {
		return nil, nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Watchers forward completion indices; the buffer lets every watcher
	// deliver without blocking even after the wait ends.
	compc := make(chan int, len(tasks))
	stopc := make(chan struct{})
	defer close(stopc)
	for i, t := range tasks {
		go func(i int, t *Task[T]) {
			select {
			case <-t.Done():
				compc <- i
			case <-stopc:
			}
		}(i, t)
	}

	completed := make([]bool, len(tasks))

	split := func() (d, p []*Task[T]) {
		for i, t := range tasks {
			if completed[i] || t.IsDone() {
				d = append(d, t)
			} else {
				p = append(p, t)
			}
		}
		return d, p
	}

	for n := 0; n < len(tasks); n++ {
		select {
		case i := <-compc:
			completed[i] = true
			t := tasks[i]
			terr := t.Err()
			if terr != nil {
				benign := cfg.ignoreCancelled &&
					(t.IsCancelled() || errors.Is(terr, context.Canceled))
				switch {
				case benign:
					// Filtered out entirely.
				case policy == FirstError:
					d, p := split()
					return d, p, terr
				default:
					cfg.care(t, terr)
				}
			}
			if policy == FirstCompleted {
				d, p := split()
				return d, p, nil
			}
		case <-ctx.Done():
			d, p := split()
			return d, p, ctx.Err()
		}
	}

	d, p := split()
	return d, p, nil
}

// WaitAll waits for every task to complete. Task failures are reported to
// the care handler; the returned error is non-nil only if ctx completed
// first.
func WaitAll[T any](ctx context.Context, tasks []*Task[T], opts ...WaitOption) (done, pending []*Task[T], err error) {
	return Wait(ctx, AllCompleted, tasks, opts...)
}

// WaitFirstError waits until any task fails or all complete, returning the
// first qualifying failure.
func WaitFirstError[T any](ctx context.Context, tasks []*Task[T], opts ...WaitOption) (done, pending []*Task[T], err error) {
	return Wait(ctx, FirstError, tasks, opts...)
}

// WaitFirstCompleted waits until any task completes.
func WaitFirstCompleted[T any](ctx context.Context, tasks []*Task[T], opts ...WaitOption) (done, pending []*Task[T], err error) {
	return Wait(ctx, FirstCompleted, tasks, opts...)
}
