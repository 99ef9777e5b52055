package installer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
)

// fakeConsole shows one screen at a time and moves to the next screen when
// it receives the input named in next
type fakeConsole struct {
	console.Driver

	mu     sync.Mutex
	screen string
	// next maps "power-on", "power-off", "reset" or the typed keys to the
	// screen shown afterwards
	next map[string]string
	// typed records every key sequence sent
	typed []string
	// actErr is returned by every action when set
	actErr  error
	initErr error
	inited  bool
	closed  bool
}

func newFakeConsole(screen string, next map[string]string) *fakeConsole {
	return &fakeConsole{
		Driver: console.NotSupportedDriver,
		screen: screen,
		next:   next,
	}
}

func (f *fakeConsole) String() string {
	return "fake"
}

func (f *fakeConsole) Init(ctx context.Context, t console.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inited = true
	return f.initErr
}

func (f *fakeConsole) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConsole) Capture(ctx context.Context) (console.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return console.Frame{Text: f.screen, CapturedAt: time.Now()}, nil
}

func (f *fakeConsole) input(in string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actErr != nil {
		return f.actErr
	}
	if s, ok := f.next[in]; ok {
		f.screen = s
	}
	return nil
}

func (f *fakeConsole) SendKeys(ctx context.Context, keys []console.Key) error {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k.String())
	}
	f.mu.Lock()
	f.typed = append(f.typed, b.String())
	f.mu.Unlock()
	return f.input(b.String())
}

func (f *fakeConsole) PowerOn(ctx context.Context) error {
	return f.input("power-on")
}

func (f *fakeConsole) PowerOff(ctx context.Context) error {
	return f.input("power-off")
}

func (f *fakeConsole) Reset(ctx context.Context) error {
	return f.input("reset")
}

func (f *fakeConsole) keysTyped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typed...)
}

const installPlan = `
name: hyperscale-install
screens:
  - name: "off"
    patterns: ['^off$']
  - name: boot-menu
    patterns: ['^boot menu$']
  - name: login
    patterns: ['^login:$']
  - name: shell
    patterns: ['^shell$']
  - name: install-error
    patterns: ['^install error$']
steps:
  - name: power-on
    action:
      type: power-on
    expect: [boot-menu]
    policy:
      maxAttempts: 3
      interval: 1ms
  - name: boot
    action:
      type: keys
      keys: "<ENTER>"
    expect: [login]
    fail: [install-error]
    retries: 1
    policy:
      maxAttempts: 3
      interval: 1ms
  - name: login
    action:
      type: keys
      keys: "root<TAB>secret<ENTER>"
    expect: [shell]
    policy:
      maxAttempts: 3
      interval: 1ms
`

// installConsole follows installPlan from power on to a shell
func installConsole() *fakeConsole {
	return newFakeConsole("off", map[string]string{
		"power-on":               "boot menu",
		"<ENTER>":                "login:",
		"root<TAB>secret<ENTER>": "shell",
	})
}
