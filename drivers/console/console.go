// Package console defines the collaborators that poll and drive a remote
// installer console: frame sources that capture what the console shows and
// actuators that type into it or power-cycle the machine behind it.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hsauto/hsauto/pkg/config"
	"github.com/hsauto/hsauto/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Target identifies the machine whose console is driven
type Target struct {
	// Name is the node name used in logs and reports
	Name string
	// VMName is the hypervisor inventory name. Defaults to Name.
	VMName string
	// Addresses are the reachable addresses of the node, tried in order
	Addresses []string
}

// InventoryName returns the name of the VM backing the target
func (t Target) InventoryName() string {
	if t.VMName != "" {
		return t.VMName
	}
	return t.Name
}

// Frame is a snapshot of what a console shows
type Frame struct {
	Text       string
	CapturedAt time.Time
}

// FrameSource captures the current console frame
type FrameSource interface {
	// Capture returns the frame shown right now. It must not change the target.
	Capture(ctx context.Context) (Frame, error)
}

// Actuator sends input to a console and controls power of the machine behind it
type Actuator interface {
	// SendKeys types the given keys into the console
	SendKeys(ctx context.Context, keys []Key) error
	// PowerOn powers on the machine. Powering on a running machine is a no-op.
	PowerOn(ctx context.Context) error
	// PowerOff powers off the machine. Powering off a stopped machine is a no-op.
	PowerOff(ctx context.Context) error
	// Reset hard resets the machine
	Reset(ctx context.Context) error
}

// Driver is a console transport bound to one target
type Driver interface {
	FrameSource
	Actuator

	// Init connects the driver to the given target
	Init(ctx context.Context, t Target) error

	// String returns the string name of this driver.
	String() string

	// Close releases the connection to the target
	Close() error
}

// Factory builds a new, unconnected driver. Each target gets its own driver
// instance so targets can be driven concurrently.
type Factory func(cfg *config.Config, log logrus.FieldLogger) (Driver, error)

var (
	factories = make(map[string]Factory)
	lock      sync.RWMutex
)

// Register registers the given console driver factory
func Register(name string, f Factory) error {
	lock.Lock()
	defer lock.Unlock()
	if _, ok := factories[name]; ok {
		return fmt.Errorf("console driver: %s is already registered", name)
	}
	factories[name] = f
	return nil
}

// Get returns a registered console driver factory
func Get(name string) (Factory, error) {
	lock.RLock()
	defer lock.RUnlock()
	if f, ok := factories[name]; ok {
		return f, nil
	}
	return nil, &errors.ErrNotFound{
		ID:   name,
		Type: "Console Driver",
	}
}

type notSupportedDriver struct{}

// NotSupportedDriver provides the default driver with none of the operations supported
var NotSupportedDriver = &notSupportedDriver{}

func (d *notSupportedDriver) Init(ctx context.Context, t Target) error {
	return &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "Init()",
	}
}

func (d *notSupportedDriver) String() string {
	return fmt.Sprint("Operation String() is not supported")
}

func (d *notSupportedDriver) Close() error {
	return nil
}

func (d *notSupportedDriver) Capture(ctx context.Context) (Frame, error) {
	return Frame{}, &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "Capture()",
	}
}

func (d *notSupportedDriver) SendKeys(ctx context.Context, keys []Key) error {
	return &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "SendKeys()",
	}
}

func (d *notSupportedDriver) PowerOn(ctx context.Context) error {
	return &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "PowerOn()",
	}
}

func (d *notSupportedDriver) PowerOff(ctx context.Context) error {
	return &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "PowerOff()",
	}
}

func (d *notSupportedDriver) Reset(ctx context.Context) error {
	return &errors.ErrNotSupported{
		Type:      "Function",
		Operation: "Reset()",
	}
}
