package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestGroupWaitCollectsFirstError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	g := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		return boom
	})
	g.Go(func(ctx context.Context) error {
		// Cancelled once the first function fails.
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, g.Wait(), boom)
}

func TestGroupContextCancelledAfterWait(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error { return nil })
	require.NoError(t, g.Wait())
	require.Error(t, g.Context().Err())
}

func TestGroupSetLimit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := NewGroup(context.Background())
	g.SetLimit(1)

	var running, peak int32
	for i := 0; i < 4; i++ {
		g.Go(func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			atomic.AddInt32(&running, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(1))

	started := g.TryGo(func(ctx context.Context) error { return nil })
	require.True(t, started)
	require.NoError(t, g.Wait())
}
