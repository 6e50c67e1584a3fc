package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(delays *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestWithRetry_TransientExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	transient := errors.New("temporary failure")

	_, attempts, err := WithRetry(context.Background(), recordingPolicy(&delays), func(context.Context) (int, error) {
		calls++
		return 0, transient
	})

	require.ErrorIs(t, err, transient)
	assert.Equal(t, MaxRetries, calls)
	assert.Equal(t, MaxRetries, attempts)
	assert.Equal(t, []time.Duration{RetryDelay, 2 * RetryDelay}, delays)
}

func TestWithRetry_PermanentIsNotRetried(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, attempts, err := WithRetry(context.Background(), recordingPolicy(&delays), func(context.Context) (string, error) {
		calls++
		return "", apiError(CodeAccessDenied)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
}

func TestWithRetry_SucceedsAfterFailure(t *testing.T) {
	var delays []time.Duration
	var retried []int
	calls := 0

	p := recordingPolicy(&delays)
	p.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	got, attempts, err := WithRetry(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", statusError(503)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{1}, retried)
}

func TestWithRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	p := RetryPolicy{Delay: time.Hour}
	_, attempts, err := WithRetry(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_CustomAttempts(t *testing.T) {
	calls := 0
	p := RetryPolicy{
		MaxAttempts: 5,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	_, attempts, _ := WithRetry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("flaky")
	})

	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, attempts)
}
