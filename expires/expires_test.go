package expires

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestExpiryCancelsDerivedContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), 20*time.Millisecond)
	defer e.Release()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("derived context never expired")
	}
	require.True(t, e.Expired())
	require.ErrorIs(t, context.Cause(ctx), ErrExpired)
	require.ErrorIs(t, e.Err(), ErrExpired)
	require.Zero(t, e.Remaining())
}

func TestSuppressHidesExpiryFromErr(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), 1*time.Millisecond, Suppress())
	defer e.Release()
	<-ctx.Done()
	require.True(t, e.Expired())
	require.NoError(t, e.Err())
}

func TestZeroTimeoutExpiresImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), 0)
	defer e.Release()
	require.True(t, e.Expired())
	require.Error(t, ctx.Err())
}

func TestRemainingCountsDown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, _ := New(context.Background(), time.Hour)
	defer e.Release()
	r := e.Remaining()
	require.Greater(t, r, 50*time.Minute)
	require.LessOrEqual(t, r, time.Hour)
}

func TestResetRearms(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), time.Hour)
	defer e.Release()
	require.NoError(t, e.Reset(20*time.Millisecond))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reset deadline never fired")
	}
	require.True(t, e.Expired())
}

func TestResetInvalidatesLateTimerDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), time.Hour)
	defer e.Release()

	e.mu.Lock()
	stale := e.gen
	e.mu.Unlock()

	require.NoError(t, e.Reset(time.Hour))

	// Deliver the pre-reset timer callback late, as if it had fired just
	// before Reset could stop it. It must not expire the rearmed guard.
	e.expire(stale)

	require.False(t, e.Expired())
	require.NoError(t, ctx.Err())
	require.NoError(t, e.Reset(time.Hour))
}

func TestResetAfterExpiryFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), 0)
	defer e.Release()
	<-ctx.Done()
	require.ErrorIs(t, e.Reset(time.Second), ErrExpired)
}

func TestReleaseIsIdempotentAndPreservesExpiry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), 1*time.Millisecond)
	<-ctx.Done()
	e.Release()
	e.Release()
	require.True(t, e.Expired())
	require.ErrorIs(t, e.Err(), ErrExpired)
	require.Error(t, e.Reset(time.Second))
}

func TestReleaseBeforeExpiryCancelsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, ctx := New(context.Background(), time.Hour)
	e.Release()
	require.False(t, e.Expired())
	require.NoError(t, e.Err())
	require.Zero(t, e.Remaining())
	require.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestParentCancellationPropagates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	parent, cancel := context.WithCancel(context.Background())
	e, ctx := New(parent, time.Hour)
	defer e.Release()
	cancel()
	<-ctx.Done()
	require.False(t, e.Expired())
	require.NoError(t, e.Err())
}
