package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func take(p RetryPolicy, n int) []time.Duration {
	next := p.delays()
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, next())
	}
	return out
}

func TestPolicyDelays(t *testing.T) {
	ms := time.Millisecond
	testCases := []struct {
		name     string
		policy   RetryPolicy
		expected []time.Duration
	}{
		{
			name:     "default-is-constant",
			policy:   RetryPolicy{MaxAttempts: 5, Interval: 10 * ms},
			expected: []time.Duration{10 * ms, 10 * ms, 10 * ms, 10 * ms},
		},
		{
			name:     "linear",
			policy:   RetryPolicy{MaxAttempts: 5, Interval: 10 * ms, Backoff: BackoffLinear},
			expected: []time.Duration{10 * ms, 20 * ms, 30 * ms, 40 * ms},
		},
		{
			name:     "linear-capped",
			policy:   RetryPolicy{MaxAttempts: 5, Interval: 10 * ms, Backoff: BackoffLinear, MaxInterval: 25 * ms},
			expected: []time.Duration{10 * ms, 20 * ms, 25 * ms, 25 * ms},
		},
		{
			name:     "exponential",
			policy:   RetryPolicy{MaxAttempts: 5, Interval: 10 * ms, Backoff: BackoffExponential},
			expected: []time.Duration{10 * ms, 20 * ms, 40 * ms, 80 * ms},
		},
		{
			name:     "exponential-capped",
			policy:   RetryPolicy{MaxAttempts: 5, Interval: 10 * ms, Backoff: BackoffExponential, MaxInterval: 30 * ms},
			expected: []time.Duration{10 * ms, 20 * ms, 30 * ms, 30 * ms, 30 * ms},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, take(tc.policy, len(tc.expected)))
		})
	}
}

func TestPolicyCeiling(t *testing.T) {
	ms := time.Millisecond
	require.Equal(t, 40*ms, RetryPolicy{MaxAttempts: 5, Interval: 10 * ms}.Ceiling())
	require.Equal(t, 70*ms, RetryPolicy{MaxAttempts: 4, Interval: 10 * ms, Backoff: BackoffExponential}.Ceiling())
	require.Equal(t, 25*ms, RetryPolicy{MaxAttempts: 5, Interval: 10 * ms, Deadline: 25 * ms}.Ceiling())
	require.Equal(t, time.Minute, RetryPolicy{MaxAttempts: Unbounded, Deadline: time.Minute}.Ceiling())
	require.Zero(t, RetryPolicy{MaxAttempts: 1, Interval: time.Hour}.Ceiling())
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, RetryPolicy{MaxAttempts: 1}.Validate())
	require.NoError(t, RetryPolicy{MaxAttempts: Unbounded, Deadline: time.Second}.Validate())
	require.True(t, errors.Is(RetryPolicy{}.Validate(), ErrInvalidPolicy))
	require.True(t, errors.Is(RetryPolicy{MaxAttempts: -2}.Validate(), ErrInvalidPolicy))
	require.True(t, errors.Is(RetryPolicy{MaxAttempts: 1, MaxInterval: -1}.Validate(), ErrInvalidPolicy))
	require.True(t, errors.Is(RetryPolicy{MaxAttempts: 1, Deadline: -1}.Validate(), ErrInvalidPolicy))
}

func TestDoRetryWithTimeout(t *testing.T) {
	t.Run("succeeds-after-retries", func(t *testing.T) {
		count := 0
		out, err := DoRetryWithTimeout(context.Background(), func() (interface{}, bool, error) {
			count++
			if count < 3 {
				return nil, true, errors.New("connection refused")
			}
			return "hs-node1", false, nil
		}, time.Minute, time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, "hs-node1", out)
		require.Equal(t, 3, count)
	})

	t.Run("stops-on-non-retryable-error", func(t *testing.T) {
		authErr := errors.New("permission denied")
		count := 0
		_, err := DoRetryWithTimeout(context.Background(), func() (interface{}, bool, error) {
			count++
			return nil, false, authErr
		}, time.Minute, time.Millisecond)
		require.Equal(t, authErr, err)
		require.Equal(t, 1, count)
	})

	t.Run("times-out", func(t *testing.T) {
		_, err := DoRetryWithTimeout(context.Background(), func() (interface{}, bool, error) {
			return nil, true, errors.New("no route to host")
		}, 20*time.Millisecond, time.Millisecond)
		var timedOut *ErrTimedOut
		require.True(t, errors.As(err, &timedOut))
		require.Contains(t, timedOut.Error(), "no route to host")
	})
}
