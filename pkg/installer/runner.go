// Package installer chains poll-retry steps into an install sequence and runs
// it against one or more console targets.
package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/task"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// StepStatus is the outcome of one step
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// RunStatus is the outcome of a whole run
type RunStatus string

const (
	// RunPassed means every step reached an expected screen
	RunPassed RunStatus = "passed"
	// RunFailed means at least one step missed its screen
	RunFailed RunStatus = "failed"
	// RunAborted means a transport fault or cancellation stopped the run
	RunAborted RunStatus = "aborted"
)

// StepResult records what happened in one step
type StepResult struct {
	Name    string         `json:"name" yaml:"name"`
	Status  StepStatus     `json:"status" yaml:"status"`
	Matched task.Condition `json:"matched,omitempty" yaml:"matched,omitempty"`
	// Tries is the number of times the action was sent
	Tries int `json:"tries" yaml:"tries"`
	// Attempts is the number of samples taken over all tries
	Attempts int           `json:"attempts" yaml:"attempts"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RunReport is the result of running a plan against one target
type RunReport struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Plan      string       `json:"plan" yaml:"plan"`
	Target    string       `json:"target" yaml:"target"`
	Status    RunStatus    `json:"status" yaml:"status"`
	StartedAt time.Time    `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time    `json:"ended_at" yaml:"ended_at"`
	Steps     []StepResult `json:"steps" yaml:"steps"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Passed returns true if every step passed
func (r *RunReport) Passed() bool {
	return r.Status == RunPassed
}

// DriverFactory returns a new, unconnected driver for a target
type DriverFactory func(t console.Target) (console.Driver, error)

// Runner executes plans. It holds no per-run state.
type Runner struct {
	poller      *task.Poller
	log         logrus.FieldLogger
	metrics     *Metrics
	parallelism int
}

// Option configures a Runner
type Option func(*Runner)

// WithPoller sets the poller used for every step
func WithPoller(p *task.Poller) Option {
	return func(r *Runner) {
		r.poller = p
	}
}

// WithMetrics records step outcomes in m
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithParallelism bounds how many targets RunAll drives at once. Zero or
// less means all of them.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		r.parallelism = n
	}
}

// NewRunner returns a runner logging to log
func NewRunner(log logrus.FieldLogger, opts ...Option) *Runner {
	r := &Runner{
		poller: task.NewPoller(nil),
		log:    log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes plan against an initialized driver. A step that misses its
// screen is recorded in the report; the returned error is only set when a
// transport fault or cancellation stopped the run.
func (r *Runner) Run(ctx context.Context, plan *Plan, target console.Target, d console.Driver) (*RunReport, error) {
	if plan.Matcher() == nil {
		if err := plan.Validate(); err != nil {
			return nil, err
		}
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		Plan:      plan.Name,
		Target:    target.Name,
		Status:    RunPassed,
		StartedAt: time.Now(),
	}
	log := r.log.WithFields(logrus.Fields{
		"run":    report.RunID[:8],
		"target": target.Name,
	})
	log.Infof("Starting plan %s with %d steps", plan.Name, len(plan.Steps))

	sample := console.Sampler(d, plan.Matcher())
	for i := range plan.Steps {
		step := &plan.Steps[i]
		result, err := r.runStep(ctx, log.WithField("step", step.Name), step, d, sample)
		r.metrics.observe(plan.Name, result)
		report.Steps = append(report.Steps, result)

		if err != nil {
			report.Status = RunAborted
			report.Error = err.Error()
			report.skipFrom(plan, i+1)
			report.EndedAt = time.Now()
			log.Errorf("Plan %s aborted at step %s: %v", plan.Name, step.Name, err)
			return report, fmt.Errorf("step %s: %w", step.Name, err)
		}
		if result.Status == StepFailed {
			report.Status = RunFailed
			if step.OnFailure == FailAbort {
				report.skipFrom(plan, i+1)
				break
			}
		}
	}

	report.EndedAt = time.Now()
	if report.Passed() {
		log.Infof("Plan %s passed in %v", plan.Name, report.EndedAt.Sub(report.StartedAt).Round(time.Second))
	} else {
		log.Errorf("Plan %s failed", plan.Name)
	}
	return report, nil
}

func (r *RunReport) skipFrom(plan *Plan, first int) {
	for _, s := range plan.Steps[first:] {
		r.Steps = append(r.Steps, StepResult{Name: s.Name, Status: StepSkipped})
	}
}

func (r *Runner) runStep(ctx context.Context, log logrus.FieldLogger, step *Step, d console.Driver, sample task.Sampler) (result StepResult, err error) {
	result = StepResult{Name: step.Name, Status: StepFailed}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	act := action(step, d)
	candidates := append(append([]task.Condition{}, step.Expect...), step.Fail...)
	policy := step.Policy.RetryPolicy()

	for try := 0; try <= step.Retries; try++ {
		if try > 0 {
			log.Warnf("Repeating %s action, try %d of %d", step.Action.Type, try+1, step.Retries+1)
		}
		result.Tries++

		var res task.ActionResult
		res, err = r.poller.ActAndVerify(ctx, act, candidates, sample, policy)
		if res.Outcome != nil {
			result.Attempts += res.Outcome.Attempts
		}
		if err != nil {
			result.Reason = res.Reason
			return result, err
		}

		if !res.OK {
			result.Reason = res.Reason
			log.Warnf("Wait exhausted: %s", res.Reason)
			continue
		}

		matched := res.Outcome.Matched
		result.Matched = matched
		if slices.Contains(step.Expect, matched) {
			result.Status = StepPassed
			result.Reason = ""
			log.Infof("Screen %s matched after %d attempt(s)", matched, res.Outcome.Attempts)
			return result, nil
		}
		result.Reason = fmt.Sprintf("failure screen %q observed", matched)
		log.Warnf("Screen %s observed, expected one of %v", matched, step.Expect)
	}

	log.Errorf("Step %s failed: %s", step.Name, result.Reason)
	return result, nil
}

func action(step *Step, d console.Driver) task.Action {
	switch step.Action.Type {
	case ActionKeys:
		keys := step.keys
		return func(ctx context.Context) error {
			return d.SendKeys(ctx, keys)
		}
	case ActionPowerOn:
		return d.PowerOn
	case ActionPowerOff:
		return d.PowerOff
	case ActionReset:
		return d.Reset
	default:
		return func(context.Context) error { return nil }
	}
}

// RunAll runs plan against every target concurrently, one driver per target.
// Reports are returned in target order; errors of all targets are combined.
func (r *Runner) RunAll(ctx context.Context, plan *Plan, targets []console.Target, newDriver DriverFactory) ([]*RunReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	reports := make([]*RunReport, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	if r.parallelism > 0 {
		g.SetLimit(r.parallelism)
	}
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			reports[i], errs[i] = r.runTarget(ctx, plan, t, newDriver)
			return nil
		})
	}
	g.Wait()

	return reports, multierr.Combine(errs...)
}

func (r *Runner) runTarget(ctx context.Context, plan *Plan, t console.Target, newDriver DriverFactory) (*RunReport, error) {
	aborted := func(err error) (*RunReport, error) {
		now := time.Now()
		report := &RunReport{
			RunID:     uuid.New().String(),
			Plan:      plan.Name,
			Target:    t.Name,
			Status:    RunAborted,
			StartedAt: now,
			EndedAt:   now,
			Error:     err.Error(),
		}
		report.skipFrom(plan, 0)
		return report, fmt.Errorf("%s: %w", t.Name, err)
	}

	d, err := newDriver(t)
	if err != nil {
		return aborted(err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			r.log.WithField("target", t.Name).Warnf("Failed to close %s driver: %v", d.String(), err)
		}
	}()
	if err := d.Init(ctx, t); err != nil {
		return aborted(err)
	}

	report, err := r.Run(ctx, plan, t, d)
	if err != nil {
		return report, fmt.Errorf("%s: %w", t.Name, err)
	}
	return report, nil
}
