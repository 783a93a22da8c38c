package shell_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/service/shared/shell"
	"github.com/jonathangreen/circulation/testutil/observability/testdoubles"
)

func fastRetry(options ...shell.RetryOption) []shell.RetryOption {
	return append([]shell.RetryOption{shell.WithBaseDelay(time.Millisecond), shell.WithJitterFactor(0)}, options...)
}

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	// arrange
	callCount := 0
	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, fastRetry()...)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_RetriesTransientDatabaseErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "database unavailable", err: errors.Join(shell.ErrDatabaseUnavailable, errors.New("connection refused"))},
		{name: "begin transaction failed", err: circulation.ErrBeginTransactionFailed},
		{name: "migration failed", err: circulation.ErrMigrationFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			callCount := 0
			fn := func(_ context.Context) error {
				callCount++
				if callCount < 3 {
					return tc.err
				}
				return nil
			}

			// act
			meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, fastRetry()...)

			// assert
			require.NoError(t, err)
			assert.Equal(t, 3, callCount)
			assert.Equal(t, 3, meta.Attempts)
			assert.Greater(t, meta.TotalDelay, time.Duration(0))
			assert.False(t, meta.RetriesExhausted)
		})
	}
}

func Test_RetryWithExponentialBackoff_FailsFastOnOtherErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "business rule violation", err: circulation.ErrNoAvailableCopies},
		{name: "deadline exceeded", err: context.DeadlineExceeded},
		{name: "unknown", err: errors.New("boom")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			callCount := 0
			fn := func(_ context.Context) error {
				callCount++
				return tc.err
			}

			// act
			meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, fastRetry()...)

			// assert
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, callCount)
			assert.Equal(t, 1, meta.Attempts)
		})
	}
}

func Test_RetryWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	// arrange
	metrics := testdoubles.NewMetricsCollectorSpy()
	callCount := 0
	fn := func(_ context.Context) error {
		callCount++
		return shell.ErrDatabaseUnavailable
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(
		context.Background(),
		fn,
		fastRetry(shell.WithMaxAttempts(3), shell.WithRetryMetrics(metrics, "connect"))...,
	)

	// assert
	assert.ErrorIs(t, err, shell.ErrDatabaseUnavailable)
	assert.Equal(t, 3, callCount)
	assert.True(t, meta.RetriesExhausted)
	assert.Equal(t, "database_unavailable", meta.LastErrorType)
	assert.True(t, metrics.HasCounter(shell.RetryAttemptsMetric, map[string]string{"operation": "connect", "attempt_number": "1"}))
	assert.True(t, metrics.HasCounter(shell.RetryAttemptsMetric, map[string]string{"attempt_number": "2"}))
	assert.False(t, metrics.HasCounter(shell.RetryAttemptsMetric, map[string]string{"attempt_number": "3"}))
	assert.True(t, metrics.HasDuration(shell.RetryDelayMetric, map[string]string{"operation": "connect"}))
	assert.True(t, metrics.HasCounter(shell.RetryExhaustedMetric, map[string]string{"final_error_type": "database_unavailable"}))
}

func Test_RetryWithExponentialBackoff_StopsWhenContextIsDone(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(_ context.Context) error {
		cancel()
		return shell.ErrDatabaseUnavailable
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(ctx, fn, shell.WithBaseDelay(time.Second))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, "context_canceled", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	testCases := []struct {
		name     string
		option   shell.RetryOption
		expected error
	}{
		{name: "max attempts", option: shell.WithMaxAttempts(0), expected: shell.ErrInvalidMaxAttempts},
		{name: "base delay", option: shell.WithBaseDelay(-time.Second), expected: shell.ErrNegativeBaseDelay},
		{name: "jitter", option: shell.WithJitterFactor(1.5), expected: shell.ErrInvalidJitterFactor},
		{name: "nil metrics", option: shell.WithRetryMetrics(nil, "connect"), expected: shell.ErrNilMetricsCollector},
		{name: "empty operation", option: shell.WithRetryMetrics(testdoubles.NewMetricsCollectorSpy(), ""), expected: shell.ErrEmptyOperation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := shell.RetryWithExponentialBackoff(context.Background(), fn, tc.option)

			// assert
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}
