package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New("retention", Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunInvokesJobUntilCancelled(t *testing.T) {
	s, err := New("retention", Options{Interval: 20 * time.Millisecond, RunImmediately: true}, zerolog.Nop())
	require.NoError(t, err)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) == 2 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNextTickAligned(t *testing.T) {
	s, err := New("retention", Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), s.nextTick(now))
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), s.slotStart(time.Date(2024, 5, 1, 11, 0, 0, 1, time.UTC)))

	unaligned, err := New("retention", Options{Interval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), unaligned.nextTick(now))
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s, err := New("retention", Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx, func(context.Context, time.Time) error { return nil }), context.Canceled)
}
