// Package locks provides a small framework for constructing queued locks:
// acquisition modes are expressed as policies over the set of currently
// held modes, and waiters are granted strictly in FIFO order, so a steady
// stream of compatible acquisitions cannot starve an incompatible waiter.
package locks

import (
	"context"
	"reflect"
	"sync"
)

// Held counts the currently held acquisitions per mode type.
type Held map[reflect.Type]int

// Policy decides whether an acquisition in its mode may proceed given the
// modes currently held.
type Policy interface {
	CanAcquire(held Held) bool
}

// Read is a shared mode: any number of readers may hold the lock as long
// as no writer does.
type Read struct{}

// CanAcquire implements Policy.
func (Read) CanAcquire(held Held) bool {
	return held[reflect.TypeOf(Write{})] == 0
}

// Write is an exclusive mode: it excludes readers and other writers.
type Write struct{}

// CanAcquire implements Policy.
func (Write) CanAcquire(held Held) bool {
	return held[reflect.TypeOf(Read{})] == 0 && held[reflect.TypeOf(Write{})] == 0
}

type waiter struct {
	policy  Policy
	mode    reflect.Type
	ready   chan struct{}
	granted bool
	gone    bool
}

// Stack queues and grants lock acquisitions. The zero value is ready to
// use.
type Stack struct {
	mu    sync.Mutex
	held  Held
	queue []*waiter
}

// NewStack returns an empty lock stack.
func NewStack() *Stack {
	return &Stack{}
}

// maybeGrant grants waiters from the head of the queue while their
// policies permit, stopping at the first blocked waiter to preserve FIFO
// fairness. The caller must hold s.mu.
func (s *Stack) maybeGrant() {
	for len(s.queue) > 0 {
		w := s.queue[0]
		if w.gone {
			s.queue = s.queue[1:]
			continue
		}
		if !w.policy.CanAcquire(s.held) {
			return
		}
		if s.held == nil {
			s.held = make(Held)
		}
		s.held[w.mode]++
		w.granted = true
		close(w.ready)
		s.queue = s.queue[1:]
	}
}

func (s *Stack) release(mode reflect.Type) {
	s.mu.Lock()
	s.held[mode]--
	s.maybeGrant()
	s.mu.Unlock()
}

// Acquire waits in FIFO order until policy permits acquisition, then
// returns a release function that must be called exactly once. If ctx
// completes first, Acquire returns ctx's error and no release is needed; a
// cancelled waiter never blocks the waiters behind it.
func (s *Stack) Acquire(ctx context.Context, policy Policy) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	w := &waiter{
		policy: policy,
		mode:   reflect.TypeOf(policy),
		ready:  make(chan struct{}),
	}

	s.mu.Lock()
	s.queue = append(s.queue, w)
	s.maybeGrant()
	s.mu.Unlock()

	select {
	case <-w.ready:
		mode := w.mode
		var once sync.Once
		return func() { once.Do(func() { s.release(mode) }) }, nil
	case <-ctx.Done():
		s.mu.Lock()
		if w.granted {
			// Granted between ctx completing and us noticing; hand the
			// grant straight back.
			s.held[w.mode]--
			s.maybeGrant()
		} else {
			w.gone = true
			s.maybeGrant()
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// TryAcquire acquires immediately if no waiter is queued and policy
// permits, returning a release function and true; otherwise it returns
// false without waiting.
func (s *Stack) TryAcquire(policy Policy) (func(), bool) {
	mode := reflect.TypeOf(policy)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 || !policy.CanAcquire(s.held) {
		return nil, false
	}
	if s.held == nil {
		s.held = make(Held)
	}
	s.held[mode]++
	var once sync.Once
	return func() { once.Do(func() { s.release(mode) }) }, true
}
