package task

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group is a structured spawn group: every function started with Go runs
// with a shared context that is cancelled on the first failure, and Wait
// collects the first error. It is a thin context-injecting wrapper around
// errgroup.Group.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup returns a Group whose functions receive a context derived from
// ctx. The derived context is cancelled the first time a function returns
// a non-nil error or Wait returns.
func NewGroup(ctx context.Context) *Group {
	if ctx == nil {
		ctx = context.Background()
	}
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}
}

// Context returns the group's derived context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// SetLimit caps the number of functions running simultaneously. It must be
// called before any Go call.
func (g *Group) SetLimit(n int) {
	g.eg.SetLimit(n)
}

// Go starts fn in a new goroutine, blocking if the group is at its limit.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		return fn(g.ctx)
	})
}

// TryGo starts fn only if the group is under its limit, reporting whether
// it was started.
func (g *Group) TryGo(fn func(ctx context.Context) error) bool {
	return g.eg.TryGo(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until every started function has returned, then returns the
// first non-nil error, if any.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
