package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errTerminal = errors.New("terminal")

func TestDoSucceedsAfterFailuresBelowCap(t *testing.T) {
	calls := 0
	out, attempts, err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context, int) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtCap(t *testing.T) {
	calls := 0
	_, attempts, err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context, int) (int, error) {
		calls++
		return 0, errTransient
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoTerminalErrorNotRetried(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Retryable: func(err error) bool { return !errors.Is(err, errTerminal) }}
	_, attempts, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errTerminal
	})
	require.ErrorIs(t, err, errTerminal)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDelayIsLinear(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 6*time.Second, p.Delay(3))
}

func TestDoHonoursContextWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, OnRetry: func(int, time.Duration, error) { cancel() }}
	_, attempts, err := Do(ctx, p, func(context.Context, int) (int, error) {
		return 0, errTransient
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
