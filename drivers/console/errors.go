package console

import (
	"fmt"
	"strings"

	"github.com/hsauto/hsauto/pkg/task"
)

// ErrFailedToSendKeys error type when failing to type into a console
type ErrFailedToSendKeys struct {
	Target Target
	Cause  string
}

func (e *ErrFailedToSendKeys) Error() string {
	return fmt.Sprintf("Failed to send keys to %v. Cause: %v", e.Target.Name, e.Cause)
}

// ErrFailedToCapture error type when failing to capture a console frame
type ErrFailedToCapture struct {
	Target Target
	Cause  string
}

func (e *ErrFailedToCapture) Error() string {
	return fmt.Sprintf("Failed to capture console of %v. Cause: %v", e.Target.Name, e.Cause)
}

// ErrFailedToChangePower error type when a power operation fails
type ErrFailedToChangePower struct {
	Target    Target
	Operation string
	Cause     string
}

func (e *ErrFailedToChangePower) Error() string {
	return fmt.Sprintf("Failed to %v %v. Cause: %v", e.Operation, e.Target.Name, e.Cause)
}

// ErrFailedToRunCommand error type when failing to run command
type ErrFailedToRunCommand struct {
	Addr  string
	Cause string
}

func (e *ErrFailedToRunCommand) Error() string {
	return fmt.Sprintf("Failed to run command on: %v. Cause: %v", e.Addr, e.Cause)
}

// ErrAmbiguousScreen is returned when one frame matches more than one screen.
// The screen definitions overlap and must be fixed; no screen is guessed.
type ErrAmbiguousScreen struct {
	Screens []task.Condition
}

func (e *ErrAmbiguousScreen) Error() string {
	names := make([]string, 0, len(e.Screens))
	for _, s := range e.Screens {
		names = append(names, string(s))
	}
	return fmt.Sprintf("frame matches more than one screen: %s", strings.Join(names, ", "))
}
