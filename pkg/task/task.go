// Package task drives a fallible remote target through wait-act-verify steps.
//
// Expected failures (the target never reached an expected condition within the
// policy budget) are returned as data. Errors returned by samplers and actions
// are passed back unchanged, and invalid arguments fail before anything runs.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Condition names a recognizable state of a remote target, e.g. "boot-prompt"
type Condition string

// None is the condition reported when the target is in no recognizable state
const None Condition = ""

// Sampler reports the condition the remote target is in right now. It must be
// safe to call repeatedly and must not change the target.
type Sampler func(ctx context.Context) (Condition, error)

// Action performs one mutating operation against the remote target
type Action func(ctx context.Context) error

// PollOutcome is the result of a wait
type PollOutcome struct {
	// Matched is the candidate that was observed, None if the budget ran out
	Matched Condition
	// Attempts is the number of times the sampler was called
	Attempts int
	// Elapsed is the time spent in the wait
	Elapsed time.Duration
}

// Exhausted returns true if the wait ran out of budget without a match
func (o PollOutcome) Exhausted() bool {
	return o.Matched == None
}

// ActionResult is the result of an act-then-verify step. Reason is set if and
// only if OK is false.
type ActionResult struct {
	OK      bool
	Reason  string
	Outcome *PollOutcome
}

func failed(reason string, outcome *PollOutcome) ActionResult {
	return ActionResult{OK: false, Reason: reason, Outcome: outcome}
}

// Poller runs waits using the given clock. It holds no per-wait state, so one
// Poller can serve any number of goroutines.
type Poller struct {
	clock clock.Clock
}

// NewPoller returns a Poller sleeping on c. A nil clock means the real clock.
func NewPoller(c clock.Clock) *Poller {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Poller{clock: c}
}

var defaultPoller = NewPoller(clock.RealClock{})

// WaitForOneOf samples the target with the real clock. See Poller.WaitForOneOf.
func WaitForOneOf(ctx context.Context, candidates []Condition, sample Sampler, policy RetryPolicy) (PollOutcome, error) {
	return defaultPoller.WaitForOneOf(ctx, candidates, sample, policy)
}

// ActAndVerify acts once and waits with the real clock. See Poller.ActAndVerify.
func ActAndVerify(ctx context.Context, act Action, expect []Condition, sample Sampler, policy RetryPolicy) (ActionResult, error) {
	return defaultPoller.ActAndVerify(ctx, act, expect, sample, policy)
}

// WaitForOneOf calls sample until it reports one of candidates or the policy
// budget is spent. The first candidate observed wins; candidates carry no
// priority. A spent budget is not an error: the outcome has Matched == None.
// Errors from sample and cancellation of ctx are returned as is.
func (p *Poller) WaitForOneOf(ctx context.Context, candidates []Condition, sample Sampler, policy RetryPolicy) (PollOutcome, error) {
	want, err := validate(ctx, candidates, sample, policy)
	if err != nil {
		return PollOutcome{}, err
	}

	start := p.clock.Now()
	var deadline time.Time
	if policy.Deadline > 0 {
		deadline = start.Add(policy.Deadline)
	}
	next := policy.delays()

	var outcome PollOutcome
	for {
		if err := ctx.Err(); err != nil {
			outcome.Elapsed = p.clock.Since(start)
			return outcome, err
		}

		outcome.Attempts++
		got, err := sample(ctx)
		outcome.Elapsed = p.clock.Since(start)
		if err != nil {
			return outcome, err
		}
		if _, ok := want[got]; ok {
			outcome.Matched = got
			return outcome, nil
		}
		if !policy.Unbounded() && outcome.Attempts >= policy.MaxAttempts {
			return outcome, nil
		}

		delay := next()
		if !deadline.IsZero() {
			remaining := deadline.Sub(p.clock.Now())
			if remaining <= 0 {
				return outcome, nil
			}
			if delay > remaining {
				delay = remaining
			}
		}
		if err := p.sleep(ctx, delay); err != nil {
			outcome.Elapsed = p.clock.Since(start)
			return outcome, err
		}
	}
}

// ActAndVerify calls act exactly once and then waits for one of expect. It
// never repeats act; retrying a destructive action is left to the caller.
// An exhausted wait yields OK == false with a reason naming what was expected.
func (p *Poller) ActAndVerify(ctx context.Context, act Action, expect []Condition, sample Sampler, policy RetryPolicy) (ActionResult, error) {
	if act == nil {
		return failed(ErrNilAction.Error(), nil), ErrNilAction
	}
	if _, err := validate(ctx, expect, sample, policy); err != nil {
		return failed(err.Error(), nil), err
	}

	if err := act(ctx); err != nil {
		return failed(fmt.Sprintf("action failed: %v", err), nil), err
	}

	outcome, err := p.WaitForOneOf(ctx, expect, sample, policy)
	if err != nil {
		return failed(fmt.Sprintf("waiting for %s: %v", describe(expect), err), &outcome), err
	}
	if outcome.Exhausted() {
		return failed(fmt.Sprintf("none of %s observed after %d attempt(s) in %v",
			describe(expect), outcome.Attempts, outcome.Elapsed.Round(time.Millisecond)), &outcome), nil
	}
	return ActionResult{OK: true, Outcome: &outcome}, nil
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := p.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func validate(ctx context.Context, candidates []Condition, sample Sampler, policy RetryPolicy) (map[Condition]struct{}, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	want := make(map[Condition]struct{}, len(candidates))
	for _, c := range candidates {
		if c == None {
			return nil, ErrInvalidCandidate
		}
		want[c] = struct{}{}
	}
	if sample == nil {
		return nil, ErrNilSampler
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Unbounded() && policy.Deadline == 0 {
		if _, ok := ctx.Deadline(); !ok {
			return nil, fmt.Errorf("%w: unbounded attempts need a policy deadline or a context deadline", ErrInvalidPolicy)
		}
	}
	return want, nil
}

func describe(conditions []Condition) string {
	names := make([]string, 0, len(conditions))
	for _, c := range conditions {
		names = append(names, fmt.Sprintf("%q", string(c)))
	}
	return "[" + strings.Join(names, ", ") + "]"
}
