package installer

import (
	"fmt"
	"os"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/errors"
	"github.com/hsauto/hsauto/pkg/task"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

// ActionType is the kind of input a step sends to the target
type ActionType string

const (
	// ActionNone only waits
	ActionNone ActionType = "none"
	// ActionKeys types Keys into the console
	ActionKeys ActionType = "keys"
	// ActionPowerOn powers the machine on
	ActionPowerOn ActionType = "power-on"
	// ActionPowerOff powers the machine off
	ActionPowerOff ActionType = "power-off"
	// ActionReset hard resets the machine
	ActionReset ActionType = "reset"
)

// FailurePolicy decides what happens when a step does not reach its screen
type FailurePolicy string

const (
	// FailAbort stops the run at the failed step
	FailAbort FailurePolicy = "abort"
	// FailContinue records the failure and runs the next step
	FailContinue FailurePolicy = "continue"
)

// Default step policy
const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 10 * time.Second
)

// Action is the input a step sends before waiting
type Action struct {
	Type ActionType `yaml:"type"`
	// Keys is a key sequence such as "root<TAB>secret<ENTER>", used by ActionKeys
	Keys string `yaml:"keys,omitempty"`
}

// PolicySpec is the YAML form of task.RetryPolicy. Zero fields take the defaults.
type PolicySpec struct {
	// MaxAttempts is the sample budget. Use -1 for unbounded with a Deadline.
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	Backoff     task.Backoff  `yaml:"backoff,omitempty"`
	MaxInterval time.Duration `yaml:"maxInterval,omitempty"`
	Deadline    time.Duration `yaml:"deadline,omitempty"`
}

// RetryPolicy returns the engine policy with defaults applied
func (p PolicySpec) RetryPolicy() task.RetryPolicy {
	rp := task.RetryPolicy{
		MaxAttempts: p.MaxAttempts,
		Interval:    p.Interval,
		Backoff:     p.Backoff,
		MaxInterval: p.MaxInterval,
		Deadline:    p.Deadline,
	}
	if rp.MaxAttempts == 0 {
		rp.MaxAttempts = DefaultMaxAttempts
	}
	if rp.Interval == 0 {
		rp.Interval = DefaultInterval
	}
	if rp.Backoff == "" {
		rp.Backoff = task.BackoffConstant
	}
	return rp
}

// Step is one act-then-verify stage of an install
type Step struct {
	Name   string           `yaml:"name"`
	Action Action           `yaml:"action"`
	Expect []task.Condition `yaml:"expect"`
	// Fail lists screens that end the wait early as a failure, e.g. an
	// installer error dialog
	Fail   []task.Condition `yaml:"fail,omitempty"`
	Policy PolicySpec       `yaml:"policy,omitempty"`
	// Retries is how many more times the action is repeated when the
	// expected screen does not show up
	Retries   int           `yaml:"retries,omitempty"`
	OnFailure FailurePolicy `yaml:"onFailure,omitempty"`

	keys []console.Key
}

// Plan is an ordered install sequence with the screens it recognizes
type Plan struct {
	Name    string           `yaml:"name"`
	Screens []console.Screen `yaml:"screens"`
	Steps   []Step           `yaml:"steps"`

	matcher *console.Matcher
}

// Matcher returns the compiled screens of a validated plan
func (p *Plan) Matcher() *console.Matcher {
	return p.matcher
}

// LoadPlan reads and validates a plan file
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %v", path, err)
	}
	return ParsePlan(data)
}

// ParsePlan parses and validates a YAML plan
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate compiles screens and key sequences and checks every step before
// anything is sent to a target
func (p *Plan) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &errors.ErrInvalidPlan{Plan: p.Name, Cause: fmt.Sprintf(format, args...)}
	}

	if p.Name == "" {
		return invalid("plan has no name")
	}
	if len(p.Steps) == 0 {
		return invalid("plan has no steps")
	}
	m, err := console.NewMatcher(p.Screens...)
	if err != nil {
		return invalid("%v", err)
	}

	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Name == "" {
			return invalid("step %d has no name", i+1)
		}
		if seen[s.Name] {
			return invalid("step %s is defined twice", s.Name)
		}
		seen[s.Name] = true

		if s.Action.Type == "" {
			s.Action.Type = ActionNone
		}
		switch s.Action.Type {
		case ActionKeys:
			if s.Action.Keys == "" {
				return invalid("step %s sends no keys", s.Name)
			}
			keys, err := console.ParseKeys(s.Action.Keys)
			if err != nil {
				return invalid("step %s: %v", s.Name, err)
			}
			s.keys = keys
		case ActionNone, ActionPowerOn, ActionPowerOff, ActionReset:
			if s.Action.Keys != "" {
				return invalid("step %s: keys are only sent by %s actions", s.Name, ActionKeys)
			}
		default:
			return invalid("step %s has unknown action %q", s.Name, s.Action.Type)
		}

		if len(s.Expect) == 0 {
			return invalid("step %s expects no screen", s.Name)
		}
		for _, c := range append(append([]task.Condition{}, s.Expect...), s.Fail...) {
			if !m.Has(c) {
				return invalid("step %s refers to unknown screen %q", s.Name, c)
			}
		}
		for _, c := range s.Fail {
			if slices.Contains(s.Expect, c) {
				return invalid("step %s both expects and fails on screen %q", s.Name, c)
			}
		}

		if err := s.Policy.RetryPolicy().Validate(); err != nil {
			return invalid("step %s: %v", s.Name, err)
		}
		if s.Policy.MaxAttempts == task.Unbounded && s.Policy.Deadline == 0 {
			return invalid("step %s: unbounded attempts need a deadline", s.Name)
		}
		if s.Retries < 0 {
			return invalid("step %s has negative retries", s.Name)
		}

		if s.OnFailure == "" {
			s.OnFailure = FailAbort
		}
		if s.OnFailure != FailAbort && s.OnFailure != FailContinue {
			return invalid("step %s has unknown onFailure %q", s.Name, s.OnFailure)
		}
	}

	p.matcher = m
	return nil
}
