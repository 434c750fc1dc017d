package eventwait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaiter_AlreadySatisfied(t *testing.T) {
	w := New()
	w.Observe(3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx, 2))
	assert.Equal(t, 3, w.Count())
}

func TestWaiter_WakesOnObserve(t *testing.T) {
	w := New()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- w.Wait(ctx, 2)
	}()

	w.Observe(1)
	w.Observe(1)

	require.NoError(t, <-done)
}

func TestWaiter_TimeBounded(t *testing.T) {
	w := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Wait(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaiter_IgnoresNonPositiveObservations(t *testing.T) {
	w := New()
	w.Observe(0)
	w.Observe(-5)
	assert.Equal(t, 0, w.Count())
}
