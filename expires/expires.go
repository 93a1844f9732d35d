// Package expires provides a deadline guard: a resettable timeout applied
// to a block of work through a derived context. It is useful when a plain
// context.WithTimeout is not flexible enough, such as when the deadline
// must be rearmed mid-flight or when expiry should be distinguishable from
// ordinary cancellation.
package expires

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExpired is the cancellation cause of the derived context when the
// guard's timeout elapses, and the value reported by Err on an unsuppressed
// guard.
var ErrExpired = errors.New("deadline guard expired")

// Option adjusts guard construction.
type Option func(*Expires)

// Suppress makes Err return nil after expiry, for callers that treat
// running out of time as a normal outcome. The derived context is still
// cancelled with ErrExpired.
func Suppress() Option {
	return func(e *Expires) { e.suppress = true }
}

// Expires is a deadline guard. It cancels its derived context with
// ErrExpired when the timeout elapses, can be rearmed with Reset while
// still pending, and must be released when the guarded block ends.
type Expires struct {
	mu       sync.Mutex
	cancel   context.CancelCauseFunc
	timer    *time.Timer
	expireAt time.Time
	expired  bool
	released bool
	suppress bool

	// gen invalidates stale timer callbacks: a fired callback that was
	// still waiting for mu when Reset rearmed the guard must not expire it.
	gen uint64
}

// New arms a guard over ctx and returns it along with the derived context
// the guarded work should use. A timeout of zero or less expires the guard
// immediately. The caller must call Release (typically deferred) once the
// guarded block ends.
func New(ctx context.Context, timeout time.Duration, opts ...Option) (*Expires, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e := &Expires{}
	for _, opt := range opts {
		opt(e)
	}
	dctx, cancel := context.WithCancelCause(ctx)
	e.cancel = cancel
	e.arm(timeout)
	return e, dctx
}

// arm starts the expiry timer. The caller must not hold e.mu.
func (e *Expires) arm(timeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockedArm(timeout)
}

// lockedArm starts (or restarts) the expiry timer, advancing the
// generation so that any previously fired callback becomes a no-op. The
// caller must hold e.mu.
func (e *Expires) lockedArm(timeout time.Duration) {
	e.gen++
	if timeout <= 0 {
		e.expireAt = time.Now()
		e.lockedExpire()
		return
	}
	gen := e.gen
	e.expireAt = time.Now().Add(timeout)
	e.timer = time.AfterFunc(timeout, func() { e.expire(gen) })
}

// expire is the timer callback. A generation mismatch means a Reset
// rearmed the guard after this timer had already fired; the late delivery
// must not expire the new deadline.
func (e *Expires) expire(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.lockedExpire()
}

func (e *Expires) lockedExpire() {
	if e.expired || e.released {
		return
	}
	e.expired = true
	e.cancel(ErrExpired)
}

// Remaining returns the time left before the guard expires, or zero once
// it has expired or been released.
func (e *Expires) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.expired || e.released {
		return 0
	}
	r := time.Until(e.expireAt)
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the guard's timeout has elapsed.
func (e *Expires) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

// Err returns ErrExpired if the guard expired and is not suppressed, and
// nil otherwise. Call it after the guarded block to translate expiry into
// an error result.
func (e *Expires) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.expired && !e.suppress {
		return ErrExpired
	}
	return nil
}

// Reset rearms the guard with a new timeout. It fails if the guard has
// already expired or been released; the derived context is cancelled at
// that point and cannot be revived, so a new guard is needed instead.
func (e *Expires) Reset(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errors.New("expires: reset of released guard")
	}
	if e.expired {
		return ErrExpired
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.lockedArm(timeout)
	return nil
}

// Release disarms the guard and cancels the derived context. It is
// idempotent and safe to defer. Expiry state is preserved: a guard that
// expired before Release still reports Expired and Err accordingly.
func (e *Expires) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.cancel(nil)
}
