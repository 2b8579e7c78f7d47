package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	}
}

func TestClosedCircuitPassesThrough(t *testing.T) {
	cb := New("test")
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	failN(cb, 2)
	assert.Equal(t, StateClosed, cb.State())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	failN(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	failN(cb, 2)

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbeClosesAfterSuccesses(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
		WithTimeout(10*time.Millisecond),
	)

	failN(cb, 2)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(2),
		WithTimeout(10*time.Millisecond),
	)

	failN(cb, 2)
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())
}

func TestIsFailurePredicateFiltersErrors(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(2),
		WithIsFailure(func(err error) bool { return errors.Is(err, errBoom) }),
	)

	benign := errors.New("expected condition")
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	}
	assert.Equal(t, StateClosed, cb.State())

	failN(cb, 2)
	assert.Equal(t, StateOpen, cb.State())
}

func TestOnStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New("discord",
		WithFailureThreshold(1),
		WithTimeout(5*time.Millisecond),
		WithOnStateChange(func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	failN(cb, 1)
	time.Sleep(10 * time.Millisecond)
	_ = cb.State()

	assert.Equal(t, []string{"closed->open", "open->half-open"}, transitions)
}

func TestStatsCounts(t *testing.T) {
	cb := New("test", WithFailureThreshold(10))
	failN(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))

	stats := cb.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 2, stats.TotalFailures)
	assert.Equal(t, 1, stats.TotalSuccesses)
}
