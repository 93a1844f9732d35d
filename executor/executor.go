// Package executor provides bounded offload of blocking work: functions
// that would block a cooperative caller are run on their own goroutines,
// with total concurrency capped and an optional submission rate limit. The
// executor has a clean asynchronous shutdown that drains in-flight work.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sammck-go/asynctools/asyncobj"
	"github.com/sammck-go/asynctools/log"
	"github.com/sammck-go/asynctools/task"
)

// ErrShuttingDown is wrapped by errors returned from submissions made
// after shutdown has been scheduled.
var ErrShuttingDown = errors.New("executor shutting down")

// Option adjusts executor construction.
type Option func(*Executor)

// WithWorkers caps the number of submitted functions running
// simultaneously. The default is the number of CPUs.
func WithWorkers(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRateLimit throttles submissions: each submitted function waits for a
// token from a limiter with the given rate and burst before it starts.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(e *Executor) {
		e.limiter = rate.NewLimiter(r, burst)
	}
}

// Executor runs blocking functions on goroutines with bounded concurrency.
// Construct with New; it activates itself on first submission.
//
// The executor's lifecycle is managed by the embedded asyncobj.Helper.
// Every admitted submission holds a shutdown deferral until it completes,
// so Shutdown rejects new submissions, waits for in-flight work to drain,
// and then completes. Close and ShutdownOnContext work as usual.
type Executor struct {
	asyncobj.Helper

	workers int64
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// New creates an Executor. A nil logger disables the executor's own
// logging.
func New(logger log.Logger, opts ...Option) *Executor {
	e := &Executor{
		workers: int64(runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.InitHelperWithShutdownHandler(e, logger, e.handleOnceShutdown)
	return e
}

// handleOnceShutdown runs only after every in-flight submission has
// released its deferral, so there is nothing left to drain here.
func (e *Executor) handleOnceShutdown(completionErr error) error {
	e.DLogf("executor: shut down")
	return completionErr
}

func (e *Executor) activate() error {
	return e.DoOnceActivate(func() error {
		e.sem = semaphore.NewWeighted(e.workers)
		e.DLogf("executor: activated with %d workers", e.workers)
		return nil
	}, false)
}

// admit activates the executor if needed and takes a shutdown deferral on
// behalf of one submission. It fails once shutdown has been scheduled or
// started; the deferral guarantees shutdown waits for admitted work.
func (e *Executor) admit() error {
	if err := e.activate(); err != nil {
		return err
	}
	if err := e.DeferShutdown(); err != nil {
		return fmt.Errorf("executor: submit: %w", ErrShuttingDown)
	}
	if e.IsScheduledShutdown() {
		e.UndeferShutdown()
		return fmt.Errorf("executor: submit: %w", ErrShuttingDown)
	}
	return nil
}

// Do submits a blocking function producing a value of type T and returns a
// task handle for it. The function starts once the optional rate limiter
// and the concurrency cap admit it; ctx cancellation abandons a submission
// still waiting for admission but cannot interrupt fn once it has started.
//
// Do fails with ErrShuttingDown once shutdown has been scheduled.
func Do[T any](ctx context.Context, e *Executor, name string, fn func() (T, error)) (*task.Task[T], error) {
	if fn == nil {
		return nil, errors.New("executor: nil function")
	}
	if err := e.admit(); err != nil {
		return nil, err
	}

	t := task.Spawn(ctx, name, func(tctx context.Context) (T, error) {
		defer e.UndeferShutdown()
		var zero T
		if e.limiter != nil {
			if err := e.limiter.Wait(tctx); err != nil {
				return zero, fmt.Errorf("executor: rate limit wait: %w", err)
			}
		}
		if err := e.sem.Acquire(tctx, 1); err != nil {
			return zero, fmt.Errorf("executor: acquire worker: %w", err)
		}
		defer e.sem.Release(1)
		return fn()
	})
	return t, nil
}

// Submit is Do for functions with no result value.
func (e *Executor) Submit(ctx context.Context, name string, fn func() error) (*task.Task[struct{}], error) {
	if fn == nil {
		return nil, errors.New("executor: nil function")
	}
	return Do(ctx, e, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}
