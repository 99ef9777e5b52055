package vsphere

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

const (
	// DriverName is the name of the vsphere driver
	DriverName = "vsphere"
	// logoutTimeout bounds the session logout on Close
	logoutTimeout = 10 * time.Second
)

// vsphere drives the VM console through the vSphere API. Keys are sent as USB
// scan codes and frames are rendered from the VM runtime and guest info.
type vsphere struct {
	cfg    config.VSphere
	log    logrus.FieldLogger
	url    *url.URL
	client *govmomi.Client
	vm     *object.VirtualMachine
	target console.Target
}

// New returns an unconnected vsphere console driver
func New(cfg config.VSphere, log logrus.FieldLogger) console.Driver {
	return &vsphere{
		cfg: cfg,
		log: log,
	}
}

func (v *vsphere) String() string {
	return DriverName
}

func (v *vsphere) loginURL() (*url.URL, error) {
	if v.url != nil {
		return v.url, nil
	}
	u, err := soap.ParseURL(v.cfg.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing vsphere host %s", v.cfg.Host)
	}
	if u == nil {
		return nil, fmt.Errorf("vsphere host not provided")
	}
	u.User = url.UserPassword(v.cfg.User, v.cfg.Password)
	return u, nil
}

// Init logs in and looks up the VM backing the target
func (v *vsphere) Init(ctx context.Context, t console.Target) error {
	v.target = t
	v.log = v.log.WithField("target", t.Name)

	u, err := v.loginURL()
	if err != nil {
		return err
	}

	c, err := govmomi.NewClient(ctx, u, v.cfg.Insecure)
	if err != nil {
		return fmt.Errorf("logging in error: %s", err.Error())
	}
	v.client = c
	v.log.Infof("Log in successful to vsphere: %s", u.Host)

	f := find.NewFinder(c.Client, true)

	var dc *object.Datacenter
	if v.cfg.Datacenter != "" {
		dc, err = f.Datacenter(ctx, v.cfg.Datacenter)
	} else {
		dc, err = f.DefaultDatacenter(ctx)
		if err != nil && strings.Contains(err.Error(), "default datacenter resolves to multiple instances") {
			err = fmt.Errorf("default datacenter resolves to multiple instances. please set %s_VSPHERE_DATACENTER", config.Prefix)
		}
	}
	if err != nil {
		return fmt.Errorf("Failed to find data center: %v", err)
	}
	f.SetDatacenter(dc)

	vm, err := f.VirtualMachine(ctx, t.InventoryName())
	if err != nil {
		return fmt.Errorf("Failed to get VM %s: %v", t.InventoryName(), err)
	}
	v.vm = vm
	return nil
}

func (v *vsphere) Close() error {
	if v.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	err := v.client.Logout(ctx)
	v.client = nil
	return err
}

func (v *vsphere) Capture(ctx context.Context) (console.Frame, error) {
	var vmMo mo.VirtualMachine
	if err := v.vm.Properties(ctx, v.vm.Reference(), []string{"runtime.powerState", "guest"}, &vmMo); err != nil {
		return console.Frame{}, &console.ErrFailedToCapture{
			Target: v.target,
			Cause:  fmt.Sprintf("failed to get properties: %v", err),
		}
	}
	return console.Frame{Text: renderFrame(vmMo), CapturedAt: time.Now()}, nil
}

// renderFrame writes one key=value line per observed property
func renderFrame(vmMo mo.VirtualMachine) string {
	var tools, guestState, host, ip string
	if g := vmMo.Guest; g != nil {
		tools = g.ToolsRunningStatus
		guestState = g.GuestState
		host = g.HostName
		ip = g.IpAddress
	}
	return fmt.Sprintf("power=%s\ntools=%s\nguest=%s\nhost=%s\nip=%s\n",
		vmMo.Runtime.PowerState, tools, guestState, host, ip)
}

func (v *vsphere) SendKeys(ctx context.Context, keys []console.Key) error {
	spec, err := scanCodeSpec(keys)
	if err != nil {
		return &console.ErrFailedToSendKeys{Target: v.target, Cause: err.Error()}
	}
	if len(spec.KeyEvents) == 0 {
		return nil
	}

	sent, err := v.vm.PutUsbScanCodes(ctx, spec)
	if err != nil {
		return &console.ErrFailedToSendKeys{Target: v.target, Cause: err.Error()}
	}
	if int(sent) != len(spec.KeyEvents) {
		return &console.ErrFailedToSendKeys{
			Target: v.target,
			Cause:  fmt.Sprintf("only %d of %d keys were accepted", sent, len(spec.KeyEvents)),
		}
	}
	return nil
}

func (v *vsphere) PowerOn(ctx context.Context) error {
	powerState, err := v.vm.PowerState(ctx)
	if err != nil {
		return v.powerErr("power on", err)
	}
	if powerState == types.VirtualMachinePowerStatePoweredOn {
		v.log.Warnf("VM is already in powered-on state: %s", v.vm.Name())
		return nil
	}

	v.log.Infof("Powering on VM: %s", v.vm.Name())
	tsk, err := v.vm.PowerOn(ctx)
	if err != nil {
		return v.powerErr("power on", err)
	}
	return v.wait(ctx, "power on", tsk)
}

func (v *vsphere) PowerOff(ctx context.Context) error {
	powerState, err := v.vm.PowerState(ctx)
	if err != nil {
		return v.powerErr("power off", err)
	}
	if powerState == types.VirtualMachinePowerStatePoweredOff {
		v.log.Warnf("VM is already in powered-off state: %s", v.vm.Name())
		return nil
	}

	v.log.Infof("Powering off VM: %s", v.vm.Name())
	tsk, err := v.vm.PowerOff(ctx)
	if err != nil {
		return v.powerErr("power off", err)
	}
	return v.wait(ctx, "power off", tsk)
}

func (v *vsphere) Reset(ctx context.Context) error {
	v.log.Infof("Resetting VM: %s", v.vm.Name())
	tsk, err := v.vm.Reset(ctx)
	if err != nil {
		return v.powerErr("reset", err)
	}
	return v.wait(ctx, "reset", tsk)
}

func (v *vsphere) wait(ctx context.Context, operation string, tsk *object.Task) error {
	if _, err := tsk.WaitForResult(ctx); err != nil {
		return v.powerErr(operation, err)
	}
	return nil
}

func (v *vsphere) powerErr(operation string, err error) error {
	return &console.ErrFailedToChangePower{
		Target:    v.target,
		Operation: operation,
		Cause:     fmt.Sprintf("VM %s: %v", v.target.InventoryName(), err),
	}
}

func init() {
	console.Register(DriverName, func(cfg *config.Config, log logrus.FieldLogger) (console.Driver, error) {
		if err := cfg.VSphere.Validate(); err != nil {
			return nil, err
		}
		return New(cfg.VSphere, log), nil
	})
}
