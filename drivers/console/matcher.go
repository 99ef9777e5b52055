package console

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hsauto/hsauto/pkg/task"
)

// Screen is a named console state recognized by regular expressions
type Screen struct {
	Name     task.Condition `yaml:"name"`
	Patterns []string       `yaml:"patterns"`
	// RequireAll makes the screen match only when every pattern matches.
	// By default one matching pattern is enough.
	RequireAll bool `yaml:"requireAll"`
}

type compiledScreen struct {
	name       task.Condition
	patterns   []*regexp.Regexp
	requireAll bool
}

func (s compiledScreen) matches(text string) bool {
	for _, re := range s.patterns {
		found := re.MatchString(text)
		if found && !s.requireAll {
			return true
		}
		if !found && s.requireAll {
			return false
		}
	}
	return s.requireAll
}

// Matcher decides which screen a frame shows
type Matcher struct {
	screens []compiledScreen
	names   map[task.Condition]struct{}
}

// NewMatcher compiles the given screens
func NewMatcher(screens ...Screen) (*Matcher, error) {
	m := &Matcher{names: make(map[task.Condition]struct{}, len(screens))}
	for _, s := range screens {
		if s.Name == task.None {
			return nil, fmt.Errorf("screen name must not be empty")
		}
		if _, ok := m.names[s.Name]; ok {
			return nil, fmt.Errorf("screen %s is defined twice", s.Name)
		}
		if len(s.Patterns) == 0 {
			return nil, fmt.Errorf("screen %s has no patterns", s.Name)
		}
		cs := compiledScreen{name: s.Name, requireAll: s.RequireAll}
		for _, p := range s.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("screen %s: bad pattern %q: %v", s.Name, p, err)
			}
			cs.patterns = append(cs.patterns, re)
		}
		m.screens = append(m.screens, cs)
		m.names[s.Name] = struct{}{}
	}
	return m, nil
}

// Has returns true if the matcher knows the named screen
func (m *Matcher) Has(name task.Condition) bool {
	_, ok := m.names[name]
	return ok
}

// Screens returns the names of all known screens in definition order
func (m *Matcher) Screens() []task.Condition {
	names := make([]task.Condition, 0, len(m.screens))
	for _, s := range m.screens {
		names = append(names, s.name)
	}
	return names
}

// Match returns the screen shown in frame, or task.None if no screen matches.
// A frame matching several screens is an *ErrAmbiguousScreen.
func (m *Matcher) Match(f Frame) (task.Condition, error) {
	var found []task.Condition
	for _, s := range m.screens {
		if s.matches(f.Text) {
			found = append(found, s.name)
		}
	}
	switch len(found) {
	case 0:
		return task.None, nil
	case 1:
		return found[0], nil
	default:
		return task.None, &ErrAmbiguousScreen{Screens: found}
	}
}

// Sampler returns a task.Sampler that captures a frame from src and matches it
func Sampler(src FrameSource, m *Matcher) task.Sampler {
	return func(ctx context.Context) (task.Condition, error) {
		f, err := src.Capture(ctx)
		if err != nil {
			return task.None, err
		}
		return m.Match(f)
	}
}
