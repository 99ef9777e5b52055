package task

import (
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Backoff selects how the sleep between two attempts grows
type Backoff string

const (
	// BackoffConstant sleeps Interval between every attempt
	BackoffConstant Backoff = "constant"
	// BackoffLinear sleeps k*Interval after the k-th attempt
	BackoffLinear Backoff = "linear"
	// BackoffExponential sleeps Interval*2^(k-1) after the k-th attempt
	BackoffExponential Backoff = "exponential"
)

// Unbounded lets a wait sample until it matches. A policy using it must carry a
// Deadline or be run with a context that has one.
const Unbounded = -1

// maxBackoffDelay caps exponential growth when the policy has no MaxInterval
const maxBackoffDelay = time.Hour

var (
	// ErrInvalidPolicy is returned when a RetryPolicy cannot be used for a wait
	ErrInvalidPolicy = errors.New("invalid retry policy")
	// ErrNoCandidates is returned when a wait is started without any condition to wait for
	ErrNoCandidates = errors.New("no candidate conditions given")
	// ErrInvalidCandidate is returned when the empty condition is listed as a candidate
	ErrInvalidCandidate = errors.New("empty condition cannot be a candidate")
	// ErrNilSampler is returned when no sampler is given
	ErrNilSampler = errors.New("sampler must not be nil")
	// ErrNilAction is returned when no action is given
	ErrNilAction = errors.New("action must not be nil")
)

// RetryPolicy bounds a single logical wait. It is a value type; build one per
// wait and do not share a mutated copy.
type RetryPolicy struct {
	// MaxAttempts is the number of times the sampler may be called, or Unbounded
	MaxAttempts int
	// Interval is the base sleep between two attempts
	Interval time.Duration
	// Backoff is the growth of Interval. Empty means BackoffConstant.
	Backoff Backoff
	// MaxInterval caps a single sleep. Zero means no cap.
	MaxInterval time.Duration
	// Deadline bounds the total wait. Zero means attempts are the only bound.
	Deadline time.Duration
}

// Validate reports the first problem that makes the policy unusable
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts == 0 || p.MaxAttempts < Unbounded {
		return fmt.Errorf("%w: max attempts must be positive or unbounded, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: negative interval %v", ErrInvalidPolicy, p.Interval)
	}
	if p.MaxInterval < 0 {
		return fmt.Errorf("%w: negative max interval %v", ErrInvalidPolicy, p.MaxInterval)
	}
	if p.Deadline < 0 {
		return fmt.Errorf("%w: negative deadline %v", ErrInvalidPolicy, p.Deadline)
	}
	switch p.Backoff {
	case "", BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("%w: unknown backoff %q", ErrInvalidPolicy, p.Backoff)
	}
	return nil
}

// Unbounded returns true if the policy places no limit on attempts
func (p RetryPolicy) Unbounded() bool {
	return p.MaxAttempts == Unbounded
}

// Ceiling is the longest a wait under this policy may sleep in total, ignoring
// sampler latency. Unbounded policies report their Deadline.
func (p RetryPolicy) Ceiling() time.Duration {
	if p.Unbounded() {
		return p.Deadline
	}
	next := p.delays()
	var total time.Duration
	for i := 1; i < p.MaxAttempts; i++ {
		total += next()
		if p.Deadline > 0 && total >= p.Deadline {
			return p.Deadline
		}
	}
	return total
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

// delays returns a generator of the sleep to take after attempt 1, 2, ...
func (p RetryPolicy) delays() func() time.Duration {
	switch p.Backoff {
	case BackoffLinear:
		k := 0
		return func() time.Duration {
			k++
			d := time.Duration(k) * p.Interval
			if d < 0 || (p.MaxInterval == 0 && d > maxBackoffDelay) {
				d = maxBackoffDelay
			}
			return p.capped(d)
		}
	case BackoffExponential:
		limit := p.MaxInterval
		if limit == 0 {
			limit = maxBackoffDelay
		}
		b := &wait.Backoff{
			Duration: p.Interval,
			Factor:   2,
			Steps:    int(^uint32(0) >> 1),
			Cap:      limit,
		}
		return func() time.Duration {
			return p.capped(b.Step())
		}
	default:
		return func() time.Duration {
			return p.capped(p.Interval)
		}
	}
}
