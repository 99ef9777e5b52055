package task

import (
	"context"
	"fmt"
	"time"
)

//TODO: export the type: type Task func() (interface{}, bool, error)

// ErrTimedOut is returned when an operation times out
type ErrTimedOut struct {
	// Reason is the reason for the timeout
	Reason string
}

func (e *ErrTimedOut) Error() string {
	errString := "timed out performing task."
	if len(e.Reason) > 0 {
		errString = fmt.Sprintf("%s, Error was: %s", errString, e.Reason)
	}

	return errString
}

const taskDone Condition = "done"

// DoRetryWithTimeout performs given task with given timeout and timeBeforeRetry.
// The task is retried while it returns an error and asks for a retry.
func DoRetryWithTimeout(ctx context.Context, t func() (interface{}, bool, error), timeout, timeBeforeRetry time.Duration) (interface{}, error) {
	return defaultPoller.DoRetryWithTimeout(ctx, t, timeout, timeBeforeRetry)
}

// DoRetryWithTimeout is DoRetryWithTimeout on the poller's clock
func (p *Poller) DoRetryWithTimeout(ctx context.Context, t func() (interface{}, bool, error), timeout, timeBeforeRetry time.Duration) (interface{}, error) {
	var (
		out     interface{}
		lastErr error
	)
	sample := func(context.Context) (Condition, error) {
		var retry bool
		out, retry, lastErr = t()
		if lastErr == nil || !retry {
			return taskDone, nil
		}
		return None, nil
	}

	outcome, err := p.WaitForOneOf(ctx, []Condition{taskDone}, sample, RetryPolicy{
		MaxAttempts: Unbounded,
		Interval:    timeBeforeRetry,
		Deadline:    timeout,
	})
	if err != nil {
		return out, err
	}
	if outcome.Exhausted() {
		var reason string
		if lastErr != nil {
			reason = lastErr.Error()
		}
		return out, &ErrTimedOut{Reason: reason}
	}
	return out, lastErr
}
