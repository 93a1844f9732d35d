package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// The registry tracks every task spawned through this package from spawn
// until completion, so diagnostics and shutdown code can enumerate live
// work.
var (
	regMu    sync.Mutex
	registry = make(map[uuid.UUID]Handle)
)

func register(h Handle) {
	regMu.Lock()
	registry[h.ID()] = h
	regMu.Unlock()
}

func unregister(id uuid.UUID) {
	regMu.Lock()
	delete(registry, id)
	regMu.Unlock()
}

// All returns a snapshot of the tasks that have been spawned and have not
// yet completed.
func All() []Handle {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]Handle, 0, len(registry))
	for _, h := range registry {
		out = append(out, h)
	}
	return out
}

// Lookup returns the live task with the given ID, if any.
func Lookup(id uuid.UUID) (Handle, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	h, ok := registry[id]
	return h, ok
}

type taskCtxKey struct{}

func contextWithTask(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, h)
}

// FromContext returns the task the calling goroutine is running under, if
// it was spawned through this package. The handle is injected into the
// context passed to the task function at spawn time.
func FromContext(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(taskCtxKey{}).(Handle)
	return h, ok
}
