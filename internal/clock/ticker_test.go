package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunInvokesFnOnEveryFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	done := make(chan struct{})
	go func() {
		Run(ctx, m, Fixed(time.Second), func() { calls.Add(1) })
		close(done)
	}()

	// Give the goroutine a chance to register its first After() wait.
	time.Sleep(10 * time.Millisecond)
	m.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	m.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done

	require.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	done := make(chan struct{})
	go func() {
		Run(ctx, m, Fixed(time.Second), func() { calls.Add(1) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop promptly after context cancellation")
	}
	require.Equal(t, int64(0), calls.Load())
}
